package r

// This file contains the implementation of the public methods for the
// Supervisor API

import (
	"sync"

	"github.com/capatazlib/go-rst/internal/b"
)

// Supervisor coordinates at most one dedicated worker thread. The thread gets
// spawned lazily on the first subscription, reused by every following
// subscription while it is running, stopped cooperatively once the last
// subscriber leaves, and relaunched on demand after it terminated.
//
// The broadcast channel of a Supervisor is created exactly once, on the first
// call to Subscribe, and it outlives every thread generation: consumers are
// never affected by worker restarts.
type Supervisor[E any] struct {
	name     string
	factory  Factory[E]
	settings settings

	senderOnce sync.Once
	sender     *b.Sender[Event[E]]

	// mux guards the spawn decision: live and lastGeneration are only read or
	// written while holding it
	mux            sync.Mutex
	live           *liveness
	lastGeneration uint64

	wakers *wakerCell
}

// New creates a Supervisor that spawns worker threads with the given Factory.
//
// The name argument is used for tracing purposes; it must not be empty and the
// factory must not be nil, otherwise, the system will panic. This method is
// preferred as opposed to return an error given it is considered a bad
// implementation (ideally a compilation error).
func New[E any](name string, factory Factory[E], opts ...Opt) *Supervisor[E] {
	if name == "" {
		panic("Supervisor cannot have empty name")
	}
	if factory == nil {
		panic("Supervisor cannot have empty factory")
	}
	s := defaultSettings()
	for _, optFn := range opts {
		optFn(&s)
	}
	return &Supervisor[E]{
		name:     name,
		factory:  factory,
		settings: s,
		wakers:   newWakerCell(),
	}
}

// GetName returns the name of this Supervisor
func (sup *Supervisor[E]) GetName() string {
	return sup.name
}

// getSender returns the broadcast sender, creating it on first use
func (sup *Supervisor[E]) getSender() *b.Sender[Event[E]] {
	sup.senderOnce.Do(func() {
		sup.sender = b.NewSender[Event[E]](sup.settings.channelCapacity)
	})
	return sup.sender
}

func (sup *Supervisor[E]) restartPolicy() RestartPolicy {
	if sup.settings.policy != nil {
		return *sup.settings.policy
	}
	return sup.factory.RestartPolicy()
}

// Subscribe returns a SubscriberGuard that receives every event sent after
// this call. When a worker thread is running it gets reused; otherwise a new
// Worker/Waker pair is created and a new thread generation is spawned.
//
// Subscribe fails only when Factory.Create fails while spawning; in that case
// no thread is spawned and the thread state is left untouched. The returned
// error is a *CreateError.
//
// The returned guard must be closed (usually with defer) once the consumer is
// done; closing the last guard stops the worker thread.
func (sup *Supervisor[E]) Subscribe() (*SubscriberGuard[E], error) {
	sender := sup.getSender()

	guard, spawned, err := sup.subscribe(sender)

	notifiers := sup.settings.notifiers
	if err != nil {
		notifiers.notify(Notification{
			tag:       SpawnFailed,
			supName:   sup.name,
			receivers: sender.ReceiverCount(),
			err:       err,
		})
		return nil, err
	}

	if spawned {
		notifiers.notify(Notification{
			tag:        ThreadSpawned,
			supName:    sup.name,
			generation: guard.generation,
			receivers:  sender.ReceiverCount(),
		})
	}
	notifiers.notify(Notification{
		tag:          SubscriberJoined,
		supName:      sup.name,
		generation:   guard.generation,
		subscriberID: guard.id,
		receivers:    sender.ReceiverCount(),
	})
	return guard, nil
}

// subscribe executes the reuse-or-spawn decision in a single critical section
func (sup *Supervisor[E]) subscribe(sender *b.Sender[Event[E]]) (*SubscriberGuard[E], bool, error) {
	sup.mux.Lock()
	defer sup.mux.Unlock()

	// fast path: reuse the running thread
	if sup.live != nil && sup.live.isRunning() {
		return newSubscriberGuard(sup, sender, sup.live.generation), false, nil
	}

	// slow path: both the worker and the waker are created before the thread
	// exists, the waker stays with the supervisor and the worker moves into
	// the thread
	generation := sup.lastGeneration + 1
	worker, waker, err := sup.factory.Create()
	if err == nil && (worker == nil || waker == nil) {
		err = errNilCapability
	}
	if err != nil {
		if worker != nil {
			_ = worker.Close()
		}
		return nil, false, &CreateError{supName: sup.name, generation: generation, err: err}
	}

	live := newLiveness(generation)
	sup.lastGeneration = generation
	sup.live = live
	sup.wakers.store(generation, waker)

	// the receiver is registered before the thread starts so that its first
	// idle check observes this subscriber
	guard := newSubscriberGuard(sup, sender, generation)
	es := &EventSender[E]{generation: generation, sender: sender}
	go sup.runThread(live, es, worker, sup.restartPolicy())

	return guard, true, nil
}

// retire marks the given generation as terminated, empties the waker cell and
// releases the worker; when shutdown is given, it is broadcasted inside the
// same critical section, so every subscriber either observes it or
// subscribes after the thread was marked as terminated. The worker is closed
// while the lock is held, a relaunch cannot create a new worker until the
// resource of this one is released. It returns false if the generation was
// retired already.
func (sup *Supervisor[E]) retire(
	live *liveness,
	es *EventSender[E],
	worker Worker[E],
	shutdown *Event[E],
) bool {
	sup.mux.Lock()
	defer sup.mux.Unlock()
	if !live.markTerminated() {
		return false
	}
	sup.wakers.clear(live.generation)
	closeWorker(worker)
	if shutdown != nil {
		es.sender.Send(*shutdown)
	}
	return true
}

// retireIfIdle retires the given generation (releasing its worker) only if
// there are no receivers at the moment of the check. The check is done while
// holding the same lock Subscribe uses, so a subscriber arriving concurrently
// keeps the thread alive.
func (sup *Supervisor[E]) retireIfIdle(live *liveness, es *EventSender[E], worker Worker[E]) bool {
	sup.mux.Lock()
	defer sup.mux.Unlock()
	if es.ReceiverCount() > 0 {
		return false
	}
	if live.markTerminated() {
		sup.wakers.clear(live.generation)
		closeWorker(worker)
	}
	return true
}

// Status is a snapshot of the state of a Supervisor
type Status struct {
	Name       string
	Generation uint64
	State      LivenessState
	Receivers  int
}

// Status returns a snapshot of the current state of the Supervisor. A
// Supervisor that never spawned a thread reports generation 0 and Terminated.
func (sup *Supervisor[E]) Status() Status {
	receivers := sup.getSender().ReceiverCount()

	sup.mux.Lock()
	defer sup.mux.Unlock()

	st := Status{
		Name:       sup.name,
		Generation: sup.lastGeneration,
		State:      Terminated,
		Receivers:  receivers,
	}
	if sup.live != nil {
		st.State = sup.live.snapshot().State
	}
	return st
}

// Liveness returns a snapshot of the latest thread generation
func (sup *Supervisor[E]) Liveness() Liveness {
	sup.mux.Lock()
	defer sup.mux.Unlock()
	if sup.live == nil {
		return Liveness{Generation: 0, State: Terminated}
	}
	return sup.live.snapshot()
}

var closedDone = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// Done returns a channel that gets closed once the thread of the latest
// generation finished, after its liveness was marked as terminated and its
// waker was discarded. When no thread was ever spawned, the returned channel
// is already closed.
func (sup *Supervisor[E]) Done() <-chan struct{} {
	sup.mux.Lock()
	defer sup.mux.Unlock()
	if sup.live == nil {
		return closedDone
	}
	return sup.live.done
}

// Wake invokes the Waker of the running thread, if any. It returns ErrNoWaker
// when no thread is running.
func (sup *Supervisor[E]) Wake() error {
	return sup.wakers.wake()
}
