package r

import "time"

// Worker owns a blocking resource and performs one bounded unit of work per
// PollOnce call. A call may block once (e.g. on poll(2), accept(2) or a
// channel) but it must return after its paired Waker is invoked.
//
// Close releases the resource owned by the Worker; the worker loop calls it
// exactly once, when the Worker gets discarded on restart or when the thread
// exits.
type Worker[E any] interface {
	PollOnce(*EventSender[E]) Continuation
	Close() error
}

// Waker interrupts the blocking call a Worker is parked in. Wake must be safe
// to call concurrently from any goroutine, before the worker thread started
// and after it exited; in the latter cases it should be a no-op or return a
// harmless error.
type Waker interface {
	Wake() error
}

// Factory creates matched Worker/Waker pairs. Both values returned by Create
// must share the same underlying resource so that the Waker is able to
// interrupt the exact blocking call the Worker makes. Create never spawns
// goroutines; only Supervisor.Subscribe affects the thread lifecycle.
type Factory[E any] interface {
	Create() (Worker[E], Waker, error)
	RestartPolicy() RestartPolicy
}

// CreateFn is a function that builds a matched Worker/Waker pair
type CreateFn[E any] func() (Worker[E], Waker, error)

// FactoryOpt allows to tweak the RestartPolicy of a Factory built with
// NewFactory
type FactoryOpt func(*RestartPolicy)

// WithMaxAttempts sets the maximum number of restarts a worker thread may
// perform. Use UnlimitedAttempts to disable the budget.
func WithMaxAttempts(n uint32) FactoryOpt {
	return func(p *RestartPolicy) {
		p.MaxAttempts = n
	}
}

// WithRestartWindow sets the window of time in which restart attempts are
// accounted. A zero window means attempts are never forgotten.
func WithRestartWindow(window time.Duration) FactoryOpt {
	return func(p *RestartPolicy) {
		p.Window = window
	}
}

// WithBackoff sets the delay before each restart. When max is bigger than
// base, the delay doubles on every attempt until it reaches max.
func WithBackoff(base, max time.Duration) FactoryOpt {
	return func(p *RestartPolicy) {
		p.Backoff = base
		p.MaxBackoff = max
	}
}

type funcFactory[E any] struct {
	createFn CreateFn[E]
	policy   RestartPolicy
}

func (f funcFactory[E]) Create() (Worker[E], Waker, error) {
	return f.createFn()
}

func (f funcFactory[E]) RestartPolicy() RestartPolicy {
	return f.policy
}

// NewFactory builds a Factory out of a CreateFn. The restart policy starts
// from DefaultRestartPolicy and gets modified with the given options.
//
// The createFn argument must not be nil, otherwise, the system will panic.
func NewFactory[E any](createFn CreateFn[E], opts ...FactoryOpt) Factory[E] {
	if createFn == nil {
		panic("Factory cannot have empty create function")
	}
	policy := DefaultRestartPolicy()
	for _, optFn := range opts {
		optFn(&policy)
	}
	return funcFactory[E]{createFn: createFn, policy: policy}
}

// WorkerFunc adapts a poll function and a close function into a Worker. A nil
// closeFn means the worker has nothing to release.
func WorkerFunc[E any](pollFn func(*EventSender[E]) Continuation, closeFn func() error) Worker[E] {
	return workerFunc[E]{pollFn: pollFn, closeFn: closeFn}
}

type workerFunc[E any] struct {
	pollFn  func(*EventSender[E]) Continuation
	closeFn func() error
}

func (w workerFunc[E]) PollOnce(sender *EventSender[E]) Continuation {
	return w.pollFn(sender)
}

func (w workerFunc[E]) Close() error {
	if w.closeFn == nil {
		return nil
	}
	return w.closeFn()
}

// WakerFunc adapts a function into a Waker
type WakerFunc func() error

// Wake calls the underlying function
func (fn WakerFunc) Wake() error {
	return fn()
}
