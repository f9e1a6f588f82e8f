package r

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/capatazlib/go-rst/internal/b"
)

// SubscriberGuard is the handle given to each consumer of a Supervisor. It
// owns the receive side of the broadcast channel; its presence is what keeps
// the worker thread alive.
//
// Closing the guard releases the receiver and wakes the worker thread of the
// current generation, so it can observe it has no subscribers left and stop.
// Call Close with defer right after a successful Subscribe.
type SubscriberGuard[E any] struct {
	id         string
	generation uint64
	supName    string
	sender     *b.Sender[Event[E]]
	receiver   *b.Receiver[Event[E]]
	wakers     *wakerCell
	notifiers  Notifiers
	closeOnce  sync.Once
}

func newSubscriberGuard[E any](
	sup *Supervisor[E],
	sender *b.Sender[Event[E]],
	generation uint64,
) *SubscriberGuard[E] {
	return &SubscriberGuard[E]{
		id:         uuid.NewString(),
		generation: generation,
		supName:    sup.name,
		sender:     sender,
		receiver:   sender.Subscribe(),
		wakers:     sup.wakers,
		notifiers:  sup.settings.notifiers,
	}
}

// ID returns the unique identifier of this guard
func (g *SubscriberGuard[E]) ID() string {
	return g.id
}

// Generation returns the generation of the worker thread that was running
// when this guard was created. Shutdown events of older generations may be
// compared against it.
func (g *SubscriberGuard[E]) Generation() uint64 {
	return g.generation
}

// Events returns the channel on which events are delivered, in the order they
// were sent. The channel gets closed when the guard is closed.
func (g *SubscriberGuard[E]) Events() <-chan Event[E] {
	return g.receiver.C()
}

// Recv blocks until an event is available, the given context is done or the
// guard is closed (ErrSubscriberClosed).
func (g *SubscriberGuard[E]) Recv(ctx context.Context) (Event[E], error) {
	ev, err := g.receiver.Recv(ctx)
	if errors.Is(err, b.ErrReceiverClosed) {
		return ev, ErrSubscriberClosed
	}
	return ev, err
}

// Lagged returns how many events this guard lost because it did not keep up
// with the worker
func (g *SubscriberGuard[E]) Lagged() uint64 {
	return g.receiver.Lagged()
}

// Close releases the receiver and then wakes the worker thread that is
// currently running (which may be a restarted worker, not the one running
// at subscription time). A failing wake is tolerated. Calling Close more than
// once is a no-op; it always returns nil.
func (g *SubscriberGuard[E]) Close() error {
	g.closeOnce.Do(func() {
		g.receiver.Close()

		// read fresh from the cell, never cached from subscription time
		wakeErr := g.wakers.wake()
		if wakeErr != nil && !errors.Is(wakeErr, ErrNoWaker) {
			g.notifiers.notify(Notification{
				tag:          WakeFailed,
				supName:      g.supName,
				generation:   g.generation,
				subscriberID: g.id,
				err:          wakeErr,
			})
		}

		g.notifiers.notify(Notification{
			tag:          SubscriberLeft,
			supName:      g.supName,
			generation:   g.generation,
			subscriberID: g.id,
			receivers:    g.sender.ReceiverCount(),
		})
	})
	return nil
}
