package r

import (
	"fmt"
	"strings"
	"time"
)

// NotificationTag specifies the type of lifecycle Notification emitted by a
// Supervisor
type NotificationTag uint32

const (
	// ignore zero value of iota
	_ NotificationTag = iota
	// ThreadSpawned indicates a new worker thread generation started
	ThreadSpawned
	// SpawnFailed indicates Factory.Create failed while spawning a thread
	SpawnFailed
	// SubscriberJoined indicates a SubscriberGuard was created
	SubscriberJoined
	// SubscriberLeft indicates a SubscriberGuard was closed
	SubscriberLeft
	// WakeFailed indicates the Waker returned an error on a guard close
	WakeFailed
	// WorkerRestarted indicates the worker was recreated in place
	WorkerRestarted
	// RestartFailed indicates Factory.Create failed during a restart attempt
	RestartFailed
	// RestartExhausted indicates the restart budget was surpassed
	RestartExhausted
	// WorkerFaulted indicates the worker panicked
	WorkerFaulted
	// ThreadStopped indicates a worker thread generation finished
	ThreadStopped
)

// String returns a string representation of the current NotificationTag
func (tag NotificationTag) String() string {
	switch tag {
	case ThreadSpawned:
		return "ThreadSpawned"
	case SpawnFailed:
		return "SpawnFailed"
	case SubscriberJoined:
		return "SubscriberJoined"
	case SubscriberLeft:
		return "SubscriberLeft"
	case WakeFailed:
		return "WakeFailed"
	case WorkerRestarted:
		return "WorkerRestarted"
	case RestartFailed:
		return "RestartFailed"
	case RestartExhausted:
		return "RestartExhausted"
	case WorkerFaulted:
		return "WorkerFaulted"
	case ThreadStopped:
		return "ThreadStopped"
	default:
		return "<Unknown>"
	}
}

// Notification is a record emitted by a Supervisor for monitoring purposes.
// Unlike Event, notifications are not delivered to subscribers; they are
// given to the Notifier functions registered with WithNotifier.
type Notification struct {
	tag          NotificationTag
	supName      string
	generation   uint64
	subscriberID string
	attempt      uint32
	receivers    int
	err          error
	created      time.Time
}

// GetTag returns the NotificationTag from a Notification
func (n Notification) GetTag() NotificationTag {
	return n.tag
}

// GetSupervisorName returns the name of the supervisor that emitted this
// notification
func (n Notification) GetSupervisorName() string {
	return n.supName
}

// GetGeneration returns the thread generation this notification refers to
func (n Notification) GetGeneration() uint64 {
	return n.generation
}

// GetSubscriberID returns the id of the guard on SubscriberJoined,
// SubscriberLeft and WakeFailed notifications
func (n Notification) GetSubscriberID() string {
	return n.subscriberID
}

// GetAttempt returns the restart attempt number on restart notifications
func (n Notification) GetAttempt() uint32 {
	return n.attempt
}

// GetReceivers returns the number of live receivers when the notification was
// created
func (n Notification) GetReceivers() int {
	return n.receivers
}

// Err returns the error related to this notification, if any
func (n Notification) Err() error {
	return n.err
}

// GetCreated returns a timestamp of the creation of the notification
func (n Notification) GetCreated() time.Time {
	return n.created
}

// String returns an string representation for the Notification
func (n Notification) String() string {
	var buffer strings.Builder
	buffer.WriteString("Notification{")
	buffer.WriteString(fmt.Sprintf("created: %s", n.created.Format(time.RFC3339Nano)))
	buffer.WriteString(fmt.Sprintf(", tag: %s", n.tag))
	buffer.WriteString(fmt.Sprintf(", supervisor: %s", n.supName))
	buffer.WriteString(fmt.Sprintf(", generation: %d", n.generation))
	if n.subscriberID != "" {
		buffer.WriteString(fmt.Sprintf(", subscriber: %s", n.subscriberID))
	}
	if n.attempt > 0 {
		buffer.WriteString(fmt.Sprintf(", attempt: %d", n.attempt))
	}
	if n.err != nil {
		buffer.WriteString(fmt.Sprintf(", err: %+v", n.err))
	}
	buffer.WriteString("}")
	return buffer.String()
}

// Notifier is a function that is used for reporting lifecycle notifications
// from a Supervisor. Notifiers are called synchronously from the goroutine
// that triggered the notification (often the worker thread), they must return
// quickly.
type Notifier func(Notification)

// Notifiers is a collection of notifiers.
//
// See Notifier.
type Notifiers []Notifier

// notify calls every notifier. A panicking notifier is skipped so it cannot
// take down the worker thread.
func (ns Notifiers) notify(n Notification) {
	if len(ns) == 0 {
		return
	}
	if n.created == (time.Time{}) {
		n.created = time.Now()
	}
	for _, notifier := range ns {
		callNotifier(notifier, n)
	}
}

func callNotifier(notifier Notifier, n Notification) {
	defer func() {
		_ = recover()
	}()
	notifier(n)
}
