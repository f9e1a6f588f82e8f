package r

import (
	"time"

	"github.com/capatazlib/go-rst/internal/b"
)

// Continuation is the result of a single unit of work of a Worker. It tells
// the worker loop what to do next.
type Continuation uint32

const (
	// Continue indicates the worker loop should call PollOnce again
	Continue Continuation = iota
	// Stop indicates the worker loop should exit without notifying
	// subscribers
	Stop
	// Restart indicates the worker hit a recoverable fault; the worker loop
	// discards it and creates a new Worker/Waker pair, subject to the restart
	// policy budget
	Restart
)

// String returns a string representation of the current Continuation
func (c Continuation) String() string {
	switch c {
	case Continue:
		return "Continue"
	case Stop:
		return "Stop"
	case Restart:
		return "Restart"
	default:
		return "<Unknown>"
	}
}

// EventTag specifies which arm of the Event sum type a value holds
type EventTag uint32

const (
	// ignore zero value of iota
	_ EventTag = iota
	// WorkerEvent is an Event that carries a domain value produced by a Worker
	WorkerEvent
	// ShutdownEvent is an Event that reports the worker thread terminated
	// abnormally
	ShutdownEvent
)

// String returns a string representation of the current EventTag
func (tag EventTag) String() string {
	switch tag {
	case WorkerEvent:
		return "Worker"
	case ShutdownEvent:
		return "Shutdown"
	default:
		return "<Unknown>"
	}
}

// ShutdownReason indicates why a worker thread broadcasted a Shutdown event
type ShutdownReason uint32

const (
	// ignore zero value of iota
	_ ShutdownReason = iota
	// RestartPolicyExhausted indicates the worker requested more restarts than
	// its restart policy allows
	RestartPolicyExhausted
	// Fault indicates the worker panicked while polling
	Fault
)

// String returns a string representation of the current ShutdownReason
func (sr ShutdownReason) String() string {
	switch sr {
	case RestartPolicyExhausted:
		return "RestartPolicyExhausted"
	case Fault:
		return "Fault"
	default:
		return "<Unknown>"
	}
}

// Event is the two-tier record delivered to every subscriber: it either
// carries a domain value from the Worker, or a Shutdown notification from the
// supervision system. Consumers are expected to check both arms.
type Event[E any] struct {
	tag        EventTag
	generation uint64
	payload    E
	reason     ShutdownReason
	err        error
	created    time.Time
}

func newWorkerEvent[E any](generation uint64, payload E) Event[E] {
	return Event[E]{
		tag:        WorkerEvent,
		generation: generation,
		payload:    payload,
		created:    time.Now(),
	}
}

func newShutdownEvent[E any](generation uint64, reason ShutdownReason, err error) Event[E] {
	return Event[E]{
		tag:        ShutdownEvent,
		generation: generation,
		reason:     reason,
		err:        err,
		created:    time.Now(),
	}
}

// GetTag returns the EventTag from an Event
func (ev Event[E]) GetTag() EventTag {
	return ev.tag
}

// GetGeneration returns the generation of the thread that sent this Event
func (ev Event[E]) GetGeneration() uint64 {
	return ev.generation
}

// GetCreated returns the time at which the Event was sent
func (ev Event[E]) GetCreated() time.Time {
	return ev.created
}

// Worker returns the domain value of a WorkerEvent; the second result is false
// when the Event is a ShutdownEvent.
func (ev Event[E]) Worker() (E, bool) {
	if ev.tag != WorkerEvent {
		var zero E
		return zero, false
	}
	return ev.payload, true
}

// Shutdown returns the reason of a ShutdownEvent; the second result is false
// when the Event is a WorkerEvent.
func (ev Event[E]) Shutdown() (ShutdownReason, bool) {
	if ev.tag != ShutdownEvent {
		return 0, false
	}
	return ev.reason, true
}

// Err returns the error that caused a ShutdownEvent (a *PanicError on Fault, a
// *RestartPolicyExhaustedError on budget exhaustion). It is nil for
// WorkerEvent values.
func (ev Event[E]) Err() error {
	return ev.err
}

// EventSender is handed to Worker.PollOnce on every iteration; it broadcasts
// domain values to every live subscriber.
type EventSender[E any] struct {
	generation uint64
	sender     *b.Sender[Event[E]]
}

// Send broadcasts the given domain value to all current subscribers and
// returns how many received it. It never blocks.
func (es *EventSender[E]) Send(payload E) int {
	return es.sender.Send(newWorkerEvent(es.generation, payload))
}

// ReceiverCount returns the number of subscribers alive at the moment of the
// call.
func (es *EventSender[E]) ReceiverCount() int {
	return es.sender.ReceiverCount()
}

// Generation returns the generation of the thread this sender belongs to
func (es *EventSender[E]) Generation() uint64 {
	return es.generation
}
