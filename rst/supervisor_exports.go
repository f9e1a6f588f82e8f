package rst

import (
	"github.com/capatazlib/go-rst/internal/r"
)

// Supervisor coordinates at most one dedicated worker thread that is shared
// by every subscriber. The thread is spawned on the first subscription, reused
// while it runs, and stopped once the last subscriber leaves.
//
// Since: 0.1.0
type Supervisor[E any] = r.Supervisor[E]

// SubscriberGuard is the handle given to each consumer of a Supervisor; it
// keeps the worker thread alive until it is closed.
//
// Since: 0.1.0
type SubscriberGuard[E any] = r.SubscriberGuard[E]

// Status is a snapshot of the state of a Supervisor
//
// Since: 0.1.0
type Status = r.Status

// Liveness is a snapshot of the latest worker thread generation of a
// Supervisor
//
// Since: 0.1.0
type Liveness = r.Liveness

// LivenessState indicates if a worker thread generation is running
//
// Since: 0.1.0
type LivenessState = r.LivenessState

// Running indicates the worker thread of the latest generation is running
//
// Since: 0.1.0
var Running = r.Running

// Terminated indicates there is no worker thread running
//
// Since: 0.1.0
var Terminated = r.Terminated

// Opt is used to configure a Supervisor
//
// Since: 0.1.0
type Opt = r.Opt

// WithNotifier registers a Notifier that gets called on every lifecycle
// change of the Supervisor. This option may be given multiple times.
//
// Since: 0.1.0
var WithNotifier = r.WithNotifier

// WithChannelCapacity sets how many events may be buffered per subscriber
// before the oldest ones get dropped.
//
// Since: 0.1.0
var WithChannelCapacity = r.WithChannelCapacity

// WithRestartPolicy overrides the RestartPolicy of the Factory.
//
// Since: 0.1.0
var WithRestartPolicy = r.WithRestartPolicy

// New creates a Supervisor that spawns worker threads with the given Factory.
// The name must not be empty and the factory must not be nil, otherwise, the
// system will panic.
//
// Since: 0.1.0
func New[E any](name string, factory Factory[E], opts ...Opt) *Supervisor[E] {
	return r.New[E](name, factory, opts...)
}
