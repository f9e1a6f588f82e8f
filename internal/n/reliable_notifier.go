package n

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/capatazlib/go-rst/internal/r"
)

// rootName is the prefix of the supervisor names used by a ReliableNotifier
var rootName = "reliable-notifier"

// notifierSettings contains settings and callbacks for a ReliableNotifier
// instance
type notifierSettings struct {
	notifierTimeoutDuration time.Duration

	onReliableNotifierFailure func(error)
	onNotifierTimeout         func(string)
}

// ReliableNotifierOpt allows clients to tweak the behavior of a
// ReliableNotifier instance
type ReliableNotifierOpt func(*notifierSettings)

// WithOnNotifierTimeout sets callback that gets executed when a given notifier
// is so slow to get a notification that it gets skipped.
func WithOnNotifierTimeout(cb func(string)) ReliableNotifierOpt {
	return func(settings *notifierSettings) {
		settings.onNotifierTimeout = cb
	}
}

// WithOnReliableNotifierFailure sets a callback that gets executed when one of
// the notifiers panics
func WithOnReliableNotifierFailure(cb func(error)) ReliableNotifierOpt {
	return func(settings *notifierSettings) {
		settings.onReliableNotifierFailure = cb
	}
}

// WithNotifierTimeout sets the maximum allowed time the reliable notifier is
// going to wait for a notifier function to be ready to receive a notification
// (defaults to 10 millis).
func WithNotifierTimeout(ts time.Duration) ReliableNotifierOpt {
	return func(settings *notifierSettings) {
		settings.notifierTimeoutDuration = ts
	}
}

// notifierWorker blocks on the channel dedicated to a single notifier
// function. When the function panics, the panic is reported to the
// subscribers and the worker requests a restart.
type notifierWorker struct {
	name       string
	notifierFn r.Notifier
	inputCh    <-chan r.Notification
	wakeCh     chan struct{}
}

func (w *notifierWorker) PollOnce(es *r.EventSender[error]) r.Continuation {
	select {
	case <-w.wakeCh:
		return r.Continue
	case n := <-w.inputCh:
		if err := w.call(n); err != nil {
			es.Send(err)
			return r.Restart
		}
		return r.Continue
	}
}

func (w *notifierWorker) call(n r.Notification) (err error) {
	defer func() {
		if panicVal := recover(); panicVal != nil {
			err = fmt.Errorf("notifier %s panicked: %v", w.name, panicVal)
		}
	}()
	w.notifierFn(n)
	return nil
}

func (w *notifierWorker) Close() error {
	return nil
}

func (w *notifierWorker) Wake() error {
	select {
	case w.wakeCh <- struct{}{}:
	default:
	}
	return nil
}

// newNotifierSupervisor builds the supervisor that keeps the given notifier
// function running on its own thread, restarting it every time it panics
func newNotifierSupervisor(
	name string,
	notifierFn r.Notifier,
	inputCh <-chan r.Notification,
) *r.Supervisor[error] {
	factory := r.NewFactory[error](
		func() (r.Worker[error], r.Waker, error) {
			w := &notifierWorker{
				name:       name,
				notifierFn: notifierFn,
				inputCh:    inputCh,
				wakeCh:     make(chan struct{}, 1),
			}
			return w, w, nil
		},
		// we set an impossible restart tolerance, as we always want to keep
		// this logic running (and failing in the background)
		r.WithMaxAttempts(r.UnlimitedAttempts),
		r.WithBackoff(0, 0),
	)
	return r.New[error](fmt.Sprintf("%s/%s", rootName, name), factory)
}

// reliableEntry is the input channel of a notifier supervisor; dead is set
// once that supervisor shut down for good, later notifications skip it
type reliableEntry struct {
	ch   chan r.Notification
	dead atomic.Bool
}

// listen reports the errors delivered by a notifier supervisor. A panicking
// notifier is reported and keeps running; a Shutdown is terminal, the entry
// is marked as dead and the shutdown error is returned.
func listen(
	name string,
	guard *r.SubscriberGuard[error],
	entry *reliableEntry,
	settings notifierSettings,
) error {
	for ev := range guard.Events() {
		if err, ok := ev.Worker(); ok {
			settings.onReliableNotifierFailure(err)
		} else if _, ok := ev.Shutdown(); ok {
			entry.dead.Store(true)
			return fmt.Errorf("notifier %s terminated: %w", name, ev.Err())
		}
	}
	return nil
}

// NewReliableNotifier is a Notifier that guarantees it will never panic the
// execution of its caller, and that it will continue sending notifications to
// notifiers despite previous panics
func NewReliableNotifier(
	notifierFns map[string]r.Notifier,
	opts ...ReliableNotifierOpt,
) (r.Notifier, context.CancelFunc, error) {

	// default notifier settings
	settings := notifierSettings{
		notifierTimeoutDuration:   10 * time.Millisecond,
		onReliableNotifierFailure: func(error) {},
		onNotifierTimeout:         func(string) {},
	}

	for _, optFn := range opts {
		optFn(&settings)
	}

	entries := make(map[string]*reliableEntry, len(notifierFns))
	sups := make([]*r.Supervisor[error], 0, len(notifierFns))
	guards := make([]*r.SubscriberGuard[error], 0, len(notifierFns))

	var listeners errgroup.Group
	var closed atomic.Bool
	var cancelOnce sync.Once

	cancelFn := func() {
		cancelOnce.Do(func() {
			closed.Store(true)
			for _, guard := range guards {
				_ = guard.Close()
			}
			for _, sup := range sups {
				<-sup.Done()
			}
			// a notifier that terminated before cancel is reported here
			if err := listeners.Wait(); err != nil {
				settings.onReliableNotifierFailure(err)
			}
		})
	}

	for name, notifierFn := range notifierFns {
		entry := &reliableEntry{ch: make(chan r.Notification)}
		sup := newNotifierSupervisor(name, notifierFn, entry.ch)
		guard, err := sup.Subscribe()
		if err != nil {
			cancelFn()
			return nil, nil, fmt.Errorf("could not start reliable notifier: %w", err)
		}
		entries[name] = entry
		sups = append(sups, sup)
		guards = append(guards, guard)

		// the guard channel gets closed on cancel, which ends this listener
		listeners.Go(func() error {
			return listen(name, guard, entry, settings)
		})
	}

	// this is the Notifier that the observed Supervisor is going to use to
	// send notifications.
	notifier := func(n r.Notification) {
		if closed.Load() {
			return
		}
		for name, entry := range entries {
			if entry.dead.Load() {
				continue
			}
			timer := time.NewTimer(settings.notifierTimeoutDuration)
			select {
			case <-timer.C:
				settings.onNotifierTimeout(name)
			case entry.ch <- n:
			}
			timer.Stop()
		}
	}

	return notifier, cancelFn, nil
}
