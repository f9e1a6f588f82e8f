package rst

import (
	"github.com/capatazlib/go-rst/internal/r"
)

// Worker owns a blocking resource and performs one bounded unit of work per
// PollOnce call.
//
// Since: 0.1.0
type Worker[E any] = r.Worker[E]

// Waker interrupts the blocking call of its paired Worker. It must be safe to
// call from any goroutine at any time.
//
// Since: 0.1.0
type Waker = r.Waker

// Factory creates matched Worker/Waker pairs
//
// Since: 0.1.0
type Factory[E any] = r.Factory[E]

// CreateFn is a function that builds a matched Worker/Waker pair
//
// Since: 0.1.0
type CreateFn[E any] = r.CreateFn[E]

// FactoryOpt allows to tweak the RestartPolicy of a Factory built with
// NewFactory
//
// Since: 0.1.0
type FactoryOpt = r.FactoryOpt

// EventSender is given to Worker.PollOnce to broadcast domain values
//
// Since: 0.1.0
type EventSender[E any] = r.EventSender[E]

// Continuation tells the worker loop what to do after a PollOnce call
//
// Since: 0.1.0
type Continuation = r.Continuation

// Continue indicates the worker loop should poll again
//
// Since: 0.1.0
var Continue = r.Continue

// Stop indicates the worker loop should exit silently
//
// Since: 0.1.0
var Stop = r.Stop

// Restart indicates the worker should be replaced by a new one
//
// Since: 0.1.0
var Restart = r.Restart

// RestartPolicy bounds how many restarts a worker thread may perform
//
// Since: 0.1.0
type RestartPolicy = r.RestartPolicy

// UnlimitedAttempts disables the restart budget
//
// Since: 0.1.0
const UnlimitedAttempts = r.UnlimitedAttempts

// DefaultRestartPolicy returns the policy used by NewFactory when no option
// is given
//
// Since: 0.1.0
var DefaultRestartPolicy = r.DefaultRestartPolicy

// WithMaxAttempts sets the maximum number of restarts per window
//
// Since: 0.1.0
var WithMaxAttempts = r.WithMaxAttempts

// WithRestartWindow sets the window of time in which restarts are accounted
//
// Since: 0.1.0
var WithRestartWindow = r.WithRestartWindow

// WithBackoff sets an exponential delay before each restart attempt
//
// Since: 0.1.0
var WithBackoff = r.WithBackoff

// WakerFunc adapts a function into a Waker
//
// Since: 0.1.0
type WakerFunc = r.WakerFunc

// NewFactory builds a Factory out of a CreateFn and the given restart
// options
//
// Since: 0.1.0
func NewFactory[E any](createFn CreateFn[E], opts ...FactoryOpt) Factory[E] {
	return r.NewFactory[E](createFn, opts...)
}

// WorkerFunc adapts a poll function and a close function into a Worker
//
// Since: 0.1.0
func WorkerFunc[E any](pollFn func(*EventSender[E]) Continuation, closeFn func() error) Worker[E] {
	return r.WorkerFunc[E](pollFn, closeFn)
}
