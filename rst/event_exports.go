package rst

import (
	"github.com/capatazlib/go-rst/internal/n"
	"github.com/capatazlib/go-rst/internal/r"
)

// Event is the record delivered to every subscriber: it either carries a
// domain value from the Worker or a shutdown notification
//
// Since: 0.1.0
type Event[E any] = r.Event[E]

// EventTag specifies which arm of the Event a value holds
//
// Since: 0.1.0
type EventTag = r.EventTag

// WorkerEvent is an Event that carries a domain value
//
// Since: 0.1.0
var WorkerEvent = r.WorkerEvent

// ShutdownEvent is an Event that reports an abnormal thread termination
//
// Since: 0.1.0
var ShutdownEvent = r.ShutdownEvent

// ShutdownReason indicates why a worker thread shut down
//
// Since: 0.1.0
type ShutdownReason = r.ShutdownReason

// RestartPolicyExhausted indicates the restart budget was surpassed
//
// Since: 0.1.0
var RestartPolicyExhausted = r.RestartPolicyExhausted

// Fault indicates the worker panicked
//
// Since: 0.1.0
var Fault = r.Fault

// Notification is a lifecycle record emitted by a Supervisor. Notifications
// are used for logging, metrics and testing purposes.
//
// Since: 0.1.0
type Notification = r.Notification

// NotificationTag specifies the type of a Notification
//
// Since: 0.1.0
type NotificationTag = r.NotificationTag

// ThreadSpawned indicates a new worker thread generation started
//
// Since: 0.1.0
var ThreadSpawned = r.ThreadSpawned

// SpawnFailed indicates the Factory failed while spawning a thread
//
// Since: 0.1.0
var SpawnFailed = r.SpawnFailed

// SubscriberJoined indicates a guard was created
//
// Since: 0.1.0
var SubscriberJoined = r.SubscriberJoined

// SubscriberLeft indicates a guard was closed
//
// Since: 0.1.0
var SubscriberLeft = r.SubscriberLeft

// WakeFailed indicates a Waker returned an error
//
// Since: 0.1.0
var WakeFailed = r.WakeFailed

// WorkerRestarted indicates a worker was replaced in place
//
// Since: 0.1.0
var WorkerRestarted = r.WorkerRestarted

// RestartFailed indicates the Factory failed during a restart attempt
//
// Since: 0.1.0
var RestartFailed = r.RestartFailed

// RestartExhausted indicates the restart budget was surpassed
//
// Since: 0.1.0
var RestartExhausted = r.RestartExhausted

// WorkerFaulted indicates the worker panicked
//
// Since: 0.1.0
var WorkerFaulted = r.WorkerFaulted

// ThreadStopped indicates a worker thread generation finished
//
// Since: 0.1.0
var ThreadStopped = r.ThreadStopped

// Notifier is a function that receives lifecycle notifications
//
// Since: 0.1.0
type Notifier = r.Notifier

// NotificationCriteria is an utility that allows us to specify a matching
// criteria to a specific notification
//
// Since: 0.1.0
type NotificationCriteria = n.NotificationCriteria

// NAnd joins a slice of NotificationCriteria with an and statement
//
// Since: 0.1.0
var NAnd = n.NAnd

// NOr joins a slice of NotificationCriteria with an or statement
//
// Since: 0.1.0
var NOr = n.NOr

// NNot negates the result from a given NotificationCriteria
//
// Since: 0.1.0
var NNot = n.NNot

// NHasTag returns true if the notification has any of the given tags
//
// Since: 0.1.0
var NHasTag = n.NHasTag

// NHasSupervisorName returns true if the notification comes from the given
// supervisor
//
// Since: 0.1.0
var NHasSupervisorName = n.NHasSupervisorName

// NHasGeneration returns true if the notification comes from the given thread
// generation
//
// Since: 0.1.0
var NHasGeneration = n.NHasGeneration

// NIsFailure returns true if the notification reports an error
//
// Since: 0.1.0
var NIsFailure = n.NIsFailure

// NIsFault returns true if the notification reports a worker panic
//
// Since: 0.1.0
var NIsFault = n.NIsFault

// NIsRestartExhausted returns true if the notification reports a surpassed
// restart budget
//
// Since: 0.1.0
var NIsRestartExhausted = n.NIsRestartExhausted

// SelectNotificationByCriteria forwards notifications that match the given
// criteria to the given Notifier
//
// Since: 0.1.0
var SelectNotificationByCriteria = n.SelectNotificationByCriteria

// ReliableNotifierOpt allows clients to tweak the behavior of a
// ReliableNotifier instance
//
// Since: 0.1.0
type ReliableNotifierOpt = n.ReliableNotifierOpt

// WithNotifierTimeout sets how long a ReliableNotifier waits for a slow
// notifier before skipping it
//
// Since: 0.1.0
var WithNotifierTimeout = n.WithNotifierTimeout

// WithOnNotifierTimeout sets a callback that gets executed when a notifier
// gets skipped
//
// Since: 0.1.0
var WithOnNotifierTimeout = n.WithOnNotifierTimeout

// WithOnReliableNotifierFailure sets a callback that gets executed when a
// notifier panics
//
// Since: 0.1.0
var WithOnReliableNotifierFailure = n.WithOnReliableNotifierFailure

// NewReliableNotifier is a Notifier that never panics its caller and keeps
// delivering notifications despite panics on the given notifiers. Each
// notifier runs on its own supervised worker thread.
//
// Since: 0.1.0
var NewReliableNotifier = n.NewReliableNotifier
