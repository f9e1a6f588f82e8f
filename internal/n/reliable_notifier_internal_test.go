package n

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capatazlib/go-rst/internal/r"
)

func TestListenReturnsTerminalFailure(t *testing.T) {
	calls := 0
	factory := r.NewFactory[error](func() (r.Worker[error], r.Waker, error) {
		worker := r.WorkerFunc[error](
			func(es *r.EventSender[error]) r.Continuation {
				calls++
				if calls == 1 {
					es.Send(errors.New("notifier failed once"))
					return r.Continue
				}
				panic("worker is broken")
			},
			func() error { return nil },
		)
		return worker, r.WakerFunc(func() error { return nil }), nil
	})
	sup := r.New[error]("reliable-notifier/faulty", factory)

	guard, err := sup.Subscribe()
	require.NoError(t, err)
	defer guard.Close()

	var reported []error
	settings := notifierSettings{
		onReliableNotifierFailure: func(err error) { reported = append(reported, err) },
		onNotifierTimeout:         func(string) {},
	}
	entry := &reliableEntry{ch: make(chan r.Notification)}

	err = listen("faulty", guard, entry, settings)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notifier faulty terminated")

	var panicErr *r.PanicError
	require.ErrorAs(t, err, &panicErr)
	assert.Equal(t, "worker is broken", panicErr.Value())

	assert.True(t, entry.dead.Load())
	require.Len(t, reported, 1)
	assert.EqualError(t, reported[0], "notifier failed once")
}

func TestListenEndsWhenGuardCloses(t *testing.T) {
	wakeCh := make(chan struct{}, 1)
	factory := r.NewFactory[error](func() (r.Worker[error], r.Waker, error) {
		worker := r.WorkerFunc[error](
			func(*r.EventSender[error]) r.Continuation {
				<-wakeCh
				return r.Continue
			},
			func() error { return nil },
		)
		waker := r.WakerFunc(func() error {
			select {
			case wakeCh <- struct{}{}:
			default:
			}
			return nil
		})
		return worker, waker, nil
	})
	sup := r.New[error]("reliable-notifier/idle", factory)

	guard, err := sup.Subscribe()
	require.NoError(t, err)

	settings := notifierSettings{
		onReliableNotifierFailure: func(error) {},
		onNotifierTimeout:         func(string) {},
	}
	entry := &reliableEntry{ch: make(chan r.Notification)}

	done := make(chan error, 1)
	go func() { done <- listen("idle", guard, entry, settings) }()

	require.NoError(t, guard.Close())
	assert.NoError(t, <-done)
	assert.False(t, entry.dead.Load())
	<-sup.Done()
}
