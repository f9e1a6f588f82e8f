package rst_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capatazlib/go-rst/rst"
	. "github.com/capatazlib/go-rst/internal/rtest"
)

func TestCapturePanic(t *testing.T) {
	t.Run("panic is reported to every subscriber", func(t *testing.T) {
		src := NewScriptSource[string](0)
		rec := NewRecorder()
		sup := rst.New[string]("panicky", src.Factory(), rst.WithNotifier(rec.Notifier()))

		g1, err := sup.Subscribe()
		require.NoError(t, err)
		defer g1.Close()
		g2, err := sup.Subscribe()
		require.NoError(t, err)
		defer g2.Close()

		src.Push(Panic[string]("Panicking worker (1 out of 1)"))

		for _, g := range []*rst.SubscriberGuard[string]{g1, g2} {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			ev, err := g.Recv(ctx)
			cancel()
			require.NoError(t, err)

			reason, ok := ev.Shutdown()
			require.True(t, ok)
			assert.Equal(t, rst.Fault, reason)
			assert.ErrorContains(t, ev.Err(), "Panicking worker (1 out of 1)")
		}

		require.NoError(t, WaitDone(sup.Done(), time.Second))
		require.True(t, rec.WaitTill(ThreadStopped(1), time.Second))

		AssertPartialMatch(t, rec.Snapshot(), []NotificationP{
			ThreadSpawned(1),
			WorkerFaulted(1),
			ThreadStopped(1),
		})
		assert.Equal(t, 1, len(rec.Filter(HasTag(rst.WorkerFaulted))))
	})

	t.Run("panic on a restart is a fault", func(t *testing.T) {
		calls := 0
		factory := rst.NewFactory[string](
			func() (rst.Worker[string], rst.Waker, error) {
				calls++
				if calls > 1 {
					panic("cannot create")
				}
				worker := rst.WorkerFunc[string](
					func(*rst.EventSender[string]) rst.Continuation { return rst.Restart },
					nil,
				)
				return worker, rst.WakerFunc(func() error { return nil }), nil
			},
			rst.WithBackoff(0, 0),
		)
		sup := rst.New[string]("restart-panic", factory)

		g, err := sup.Subscribe()
		require.NoError(t, err)
		defer g.Close()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		ev, err := g.Recv(ctx)
		require.NoError(t, err)

		reason, ok := ev.Shutdown()
		require.True(t, ok)
		assert.Equal(t, rst.Fault, reason)

		var panicErr *rst.PanicError
		require.ErrorAs(t, ev.Err(), &panicErr)
		assert.Equal(t, "cannot create", panicErr.Value())
		assert.Equal(t, 2, calls)
	})
}
