package rtest

import (
	"fmt"
	"strings"

	"github.com/capatazlib/go-rst/internal/r"
)

////////////////////////////////////////////////////////////////////////////////

// NotificationP represents a predicate function that allows us to assert
// properties of a Notification reported by a Supervisor
type NotificationP interface {

	// Call will execute the logic of this notification predicate
	Call(r.Notification) bool

	// Returns an string representation of this notification predicate (for
	// debugging purposes)
	String() string
}

// TagP is a predicate that asserts the r.NotificationTag of a given
// r.Notification matches an expected r.NotificationTag
type TagP struct {
	tag r.NotificationTag
}

// Call will execute predicate that checks tag of the notification
func (p TagP) Call(n r.Notification) bool {
	return n.GetTag() == p.tag
}

func (p TagP) String() string {
	return fmt.Sprintf("tag == %s", p.tag.String())
}

// GenerationP is a predicate that asserts the generation of the thread that
// triggered the notification
type GenerationP struct {
	generation uint64
}

// Call will execute predicate that checks the generation of the notification
func (p GenerationP) Call(n r.Notification) bool {
	return n.GetGeneration() == p.generation
}

func (p GenerationP) String() string {
	return fmt.Sprintf("generation == %d", p.generation)
}

// SupervisorNameP is a predicate that asserts the name of the supervisor that
// triggered the notification
type SupervisorNameP struct {
	name string
}

// Call will execute predicate that checks the supervisor name
func (p SupervisorNameP) Call(n r.Notification) bool {
	return n.GetSupervisorName() == p.name
}

func (p SupervisorNameP) String() string {
	return fmt.Sprintf("supervisor == %s", p.name)
}

// AndP is a predicate that builds the conjunction of a group NotificationP
// predicates (e.g. join NotificationP predicates with &&)
type AndP struct {
	preds []NotificationP
}

// Call will try and verify that all it's grouped predicates return true, if
// any returns false, this predicate function will return false
func (p AndP) Call(n r.Notification) bool {
	for _, pred := range p.preds {
		if !pred.Call(n) {
			return false
		}
	}
	return true
}

func (p AndP) String() string {
	strs := make([]string, 0, len(p.preds))
	for _, pred := range p.preds {
		strs = append(strs, pred.String())
	}
	return strings.Join(strs, " && ")
}

////////////////////////////////////////////////////////////////////////////////

func tagGen(tag r.NotificationTag, generation uint64) NotificationP {
	return AndP{preds: []NotificationP{TagP{tag: tag}, GenerationP{generation: generation}}}
}

// HasTag is a predicate that matches any notification with the given tag
func HasTag(tag r.NotificationTag) NotificationP {
	return TagP{tag: tag}
}

// HasSupervisorName is a predicate that matches any notification reported by
// the supervisor with the given name
func HasSupervisorName(name string) NotificationP {
	return SupervisorNameP{name: name}
}

// ThreadSpawned matches the spawn of the given thread generation
func ThreadSpawned(generation uint64) NotificationP {
	return tagGen(r.ThreadSpawned, generation)
}

// ThreadStopped matches the exit of the given thread generation
func ThreadStopped(generation uint64) NotificationP {
	return tagGen(r.ThreadStopped, generation)
}

// SubscriberJoined matches a new subscription on the given generation
func SubscriberJoined(generation uint64) NotificationP {
	return tagGen(r.SubscriberJoined, generation)
}

// SubscriberLeft matches a closed guard of the given generation
func SubscriberLeft(generation uint64) NotificationP {
	return tagGen(r.SubscriberLeft, generation)
}

// WorkerRestarted matches a successful restart inside the given generation
func WorkerRestarted(generation uint64) NotificationP {
	return tagGen(r.WorkerRestarted, generation)
}

// RestartFailed matches a failed Create call during a restart
func RestartFailed(generation uint64) NotificationP {
	return tagGen(r.RestartFailed, generation)
}

// RestartExhausted matches the exhaustion of the restart budget
func RestartExhausted(generation uint64) NotificationP {
	return tagGen(r.RestartExhausted, generation)
}

// WorkerFaulted matches a worker panic on the given generation
func WorkerFaulted(generation uint64) NotificationP {
	return tagGen(r.WorkerFaulted, generation)
}

// SpawnFailed matches a failed Create call on Subscribe
func SpawnFailed() NotificationP {
	return TagP{tag: r.SpawnFailed}
}
