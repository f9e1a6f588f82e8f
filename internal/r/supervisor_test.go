package r_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capatazlib/go-rst/internal/r"
	. "github.com/capatazlib/go-rst/internal/rtest"
)

const timeout = 2 * time.Second

func newTestSupervisor(
	src *ScriptSource[int],
	rec *Recorder,
	fopts []r.FactoryOpt,
	opts ...r.Opt,
) *r.Supervisor[int] {
	opts = append([]r.Opt{r.WithNotifier(rec.Notifier())}, opts...)
	return r.New[int]("test", src.Factory(fopts...), opts...)
}

func noBackoff(attempts uint32) []r.FactoryOpt {
	return []r.FactoryOpt{r.WithMaxAttempts(attempts), r.WithBackoff(0, 0)}
}

func TestNewPanicsOnBadImplementation(t *testing.T) {
	src := NewScriptSource[int](0)
	assert.Panics(t, func() { r.New[int]("", src.Factory()) })
	assert.Panics(t, func() { r.New[int]("test", nil) })
}

func TestStatusBeforeSubscribe(t *testing.T) {
	src := NewScriptSource[int](0)
	sup := r.New[int]("test", src.Factory())

	assert.Equal(t, "test", sup.GetName())
	assert.Equal(t, r.Status{Name: "test", Generation: 0, State: r.Terminated}, sup.Status())
	assert.Equal(t, r.Liveness{Generation: 0, State: r.Terminated}, sup.Liveness())
	assert.NoError(t, WaitDone(sup.Done(), timeout))
	assert.ErrorIs(t, sup.Wake(), r.ErrNoWaker)
	assert.Equal(t, 0, src.CreateCount())
}

func TestSubscribeReusesRunningThread(t *testing.T) {
	src := NewScriptSource[int](0)
	rec := NewRecorder()
	sup := newTestSupervisor(src, rec, nil)

	g1, err := sup.Subscribe()
	require.NoError(t, err)
	g2, err := sup.Subscribe()
	require.NoError(t, err)

	assert.Equal(t, 1, src.CreateCount())
	assert.Equal(t, uint64(1), g1.Generation())
	assert.Equal(t, uint64(1), g2.Generation())
	assert.NotEqual(t, g1.ID(), g2.ID())

	st := sup.Status()
	assert.Equal(t, r.Running, st.State)
	assert.Equal(t, 2, st.Receivers)

	src.Push(Emit(42))
	for _, g := range []*r.SubscriberGuard[int]{g1, g2} {
		ev := RecvWithin(t, g, timeout)
		v, ok := ev.Worker()
		require.True(t, ok)
		assert.Equal(t, 42, v)
		assert.Equal(t, uint64(1), ev.GetGeneration())
	}

	// closing one guard keeps the thread alive
	require.NoError(t, g1.Close())
	src.Push(Emit(43))
	ev := RecvWithin(t, g2, timeout)
	v, _ := ev.Worker()
	assert.Equal(t, 43, v)
	assert.Equal(t, r.Running, sup.Liveness().State)

	require.NoError(t, g2.Close())
	require.NoError(t, WaitDone(sup.Done(), timeout))

	// the thread state is fully retired before Done is closed
	assert.Equal(t, r.Liveness{Generation: 1, State: r.Terminated}, sup.Liveness())
	assert.ErrorIs(t, sup.Wake(), r.ErrNoWaker)
	assert.Equal(t, 1, src.CloseCount())
	assert.Equal(t, 0, src.OpenWorkers())

	require.True(t, rec.WaitTill(ThreadStopped(1), timeout))
	assert.Equal(t, 1, rec.Count(HasTag(r.ThreadSpawned)))
	assert.Equal(t, 2, rec.Count(HasTag(r.SubscriberJoined)))
	AssertPartialMatch(t, rec.Snapshot(), []NotificationP{
		ThreadSpawned(1),
		SubscriberJoined(1),
		SubscriberJoined(1),
	})
}

func TestCloseIsIdempotent(t *testing.T) {
	src := NewScriptSource[int](0)
	rec := NewRecorder()
	sup := newTestSupervisor(src, rec, nil)

	g, err := sup.Subscribe()
	require.NoError(t, err)
	assert.NoError(t, g.Close())
	assert.NoError(t, g.Close())
	require.NoError(t, WaitDone(sup.Done(), timeout))

	require.True(t, rec.WaitTill(SubscriberLeft(1), timeout))
	assert.Equal(t, 1, rec.Count(HasTag(r.SubscriberLeft)))

	_, err = g.Recv(context.Background())
	assert.ErrorIs(t, err, r.ErrSubscriberClosed)
}

func TestRelaunchIncrementsGeneration(t *testing.T) {
	src := NewScriptSource[int](0)
	rec := NewRecorder()
	sup := newTestSupervisor(src, rec, nil)

	for gen := uint64(1); gen <= 3; gen++ {
		g, err := sup.Subscribe()
		require.NoError(t, err)
		assert.Equal(t, gen, g.Generation())
		assert.Equal(t, r.Liveness{Generation: gen, State: r.Running}, sup.Liveness())

		require.NoError(t, g.Close())
		require.NoError(t, WaitDone(sup.Done(), timeout))
		assert.Equal(t, r.Terminated, sup.Liveness().State)
	}

	assert.Equal(t, 3, src.CreateCount())
	assert.Equal(t, 3, src.CloseCount())
	assert.Equal(t, 3, rec.Count(HasTag(r.ThreadSpawned)))
}

func TestNoReplayForLateSubscribers(t *testing.T) {
	src := NewScriptSource[int](0)
	rec := NewRecorder()
	sup := newTestSupervisor(src, rec, nil)

	g1, err := sup.Subscribe()
	require.NoError(t, err)
	defer g1.Close()

	src.Push(Emit(1))
	ev := RecvWithin(t, g1, timeout)
	v, _ := ev.Worker()
	require.Equal(t, 1, v)

	g2, err := sup.Subscribe()
	require.NoError(t, err)
	defer g2.Close()

	src.Push(Emit(2))
	for _, g := range []*r.SubscriberGuard[int]{g1, g2} {
		ev := RecvWithin(t, g, timeout)
		v, _ := ev.Worker()
		assert.Equal(t, 2, v)
	}
}

func TestRestartKeepsSubscribers(t *testing.T) {
	src := NewScriptSource[int](0)
	rec := NewRecorder()
	sup := newTestSupervisor(src, rec, noBackoff(3))

	g, err := sup.Subscribe()
	require.NoError(t, err)
	defer g.Close()

	src.Push(Emit(1), Restart[int](), Emit(2))
	for _, want := range []int{1, 2} {
		ev := RecvWithin(t, g, timeout)
		v, ok := ev.Worker()
		require.True(t, ok)
		assert.Equal(t, want, v)
		// restarts happen in place, the generation does not change
		assert.Equal(t, uint64(1), ev.GetGeneration())
	}

	assert.Equal(t, 2, src.CreateCount())
	assert.Equal(t, 1, src.CloseCount())
	assert.Equal(t, r.Liveness{Generation: 1, State: r.Running}, sup.Liveness())
	assert.Equal(t, 1, rec.Count(WorkerRestarted(1)))
}

func TestRestartRetriesFailedCreate(t *testing.T) {
	src := NewScriptSource[int](0)
	rec := NewRecorder()
	sup := newTestSupervisor(src, rec, noBackoff(3))

	g, err := sup.Subscribe()
	require.NoError(t, err)
	defer g.Close()

	createErr := errors.New("resource busy")
	src.FailCreates(1, createErr)
	src.Push(Restart[int](), Emit(7))

	ev := RecvWithin(t, g, timeout)
	v, ok := ev.Worker()
	require.True(t, ok)
	assert.Equal(t, 7, v)

	assert.Equal(t, 2, src.CreateCount())
	fails := rec.Filter(RestartFailed(1))
	require.Len(t, fails, 1)
	assert.ErrorIs(t, fails[0].Err(), createErr)
	assert.Equal(t, uint32(1), fails[0].GetAttempt())

	restarts := rec.Filter(WorkerRestarted(1))
	require.Len(t, restarts, 1)
	assert.Equal(t, uint32(2), restarts[0].GetAttempt())
}

func TestRestartBudgetExhausted(t *testing.T) {
	src := NewScriptSource[int](0)
	rec := NewRecorder()
	sup := newTestSupervisor(src, rec, noBackoff(2))

	g, err := sup.Subscribe()
	require.NoError(t, err)
	defer g.Close()

	src.Push(Restart[int](), Restart[int](), Restart[int]())

	ev := RecvWithin(t, g, timeout)
	reason, ok := ev.Shutdown()
	require.True(t, ok, "expected a shutdown event")
	assert.Equal(t, r.RestartPolicyExhausted, reason)
	assert.Equal(t, uint64(1), ev.GetGeneration())

	var exhaustedErr *r.RestartPolicyExhaustedError
	require.ErrorAs(t, ev.Err(), &exhaustedErr)
	assert.Equal(t, uint32(2), exhaustedErr.Attempts())

	require.NoError(t, WaitDone(sup.Done(), timeout))
	assert.Equal(t, r.Liveness{Generation: 1, State: r.Terminated}, sup.Liveness())
	assert.ErrorIs(t, sup.Wake(), r.ErrNoWaker)
	assert.Equal(t, 3, src.CreateCount())
	assert.Equal(t, 0, src.OpenWorkers())

	assert.Equal(t, 2, rec.Count(WorkerRestarted(1)))
	assert.Equal(t, 1, rec.Count(RestartExhausted(1)))

	// a later subscription relaunches with a new generation and a fresh budget
	g2, err := sup.Subscribe()
	require.NoError(t, err)
	defer g2.Close()
	assert.Equal(t, uint64(2), g2.Generation())

	src.Push(Restart[int](), Emit(5))
	ev = RecvWithin(t, g2, timeout)
	v, ok := ev.Worker()
	require.True(t, ok)
	assert.Equal(t, 5, v)
	assert.Equal(t, uint64(2), ev.GetGeneration())
}

func TestSupervisorRestartPolicyOverridesFactory(t *testing.T) {
	src := NewScriptSource[int](0)
	rec := NewRecorder()
	sup := newTestSupervisor(
		src,
		rec,
		noBackoff(r.UnlimitedAttempts),
		r.WithRestartPolicy(r.RestartPolicy{MaxAttempts: 0}),
	)

	g, err := sup.Subscribe()
	require.NoError(t, err)
	defer g.Close()

	src.Push(Restart[int]())
	ev := RecvWithin(t, g, timeout)
	reason, ok := ev.Shutdown()
	require.True(t, ok)
	assert.Equal(t, r.RestartPolicyExhausted, reason)
	assert.True(t, errors.Is(ev.Err(), &r.RestartPolicyExhaustedError{}))
	assert.Equal(t, 1, src.CreateCount())
}

func TestFaultIsIsolated(t *testing.T) {
	src := NewScriptSource[int](0)
	rec := NewRecorder()
	sup := newTestSupervisor(src, rec, noBackoff(r.UnlimitedAttempts))

	g, err := sup.Subscribe()
	require.NoError(t, err)
	defer g.Close()

	src.Push(Panic[int]("boom"))

	ev := RecvWithin(t, g, timeout)
	reason, ok := ev.Shutdown()
	require.True(t, ok, "expected a shutdown event")
	assert.Equal(t, r.Fault, reason)

	var panicErr *r.PanicError
	require.ErrorAs(t, ev.Err(), &panicErr)
	assert.Equal(t, "boom", panicErr.Value())
	assert.NotEmpty(t, panicErr.Stack())

	require.NoError(t, WaitDone(sup.Done(), timeout))
	AssertNoEvent(t, g, 50*time.Millisecond)

	// a panic is never restarted
	assert.Equal(t, 1, src.CreateCount())
	assert.Equal(t, 0, src.OpenWorkers())
	assert.Equal(t, 0, rec.Count(HasTag(r.WorkerRestarted)))
	assert.Equal(t, 1, rec.Count(WorkerFaulted(1)))
	require.True(t, rec.WaitTill(ThreadStopped(1), timeout))
	AssertPartialMatch(t, rec.Snapshot(), []NotificationP{
		ThreadSpawned(1),
		WorkerFaulted(1),
		ThreadStopped(1),
	})
}

func TestInvalidContinuationIsAFault(t *testing.T) {
	src := NewScriptSource[int](0)
	rec := NewRecorder()
	sup := newTestSupervisor(src, rec, nil)

	g, err := sup.Subscribe()
	require.NoError(t, err)
	defer g.Close()

	src.Push(Invalid[int]())
	ev := RecvWithin(t, g, timeout)
	reason, ok := ev.Shutdown()
	require.True(t, ok)
	assert.Equal(t, r.Fault, reason)
	require.NoError(t, WaitDone(sup.Done(), timeout))
}

func TestStopDoesNotNotifySubscribers(t *testing.T) {
	src := NewScriptSource[int](0)
	rec := NewRecorder()
	sup := newTestSupervisor(src, rec, nil)

	g, err := sup.Subscribe()
	require.NoError(t, err)
	defer g.Close()

	src.Push(Stop[int]())
	require.NoError(t, WaitDone(sup.Done(), timeout))
	AssertNoEvent(t, g, 50*time.Millisecond)

	st := sup.Status()
	assert.Equal(t, r.Terminated, st.State)
	assert.Equal(t, 1, st.Receivers)
	assert.ErrorIs(t, sup.Wake(), r.ErrNoWaker)

	// the subscriber that is still around does not keep a dead thread; a new
	// subscription relaunches it
	g2, err := sup.Subscribe()
	require.NoError(t, err)
	defer g2.Close()
	assert.Equal(t, uint64(2), g2.Generation())

	src.Push(Emit(9))
	for _, g := range []*r.SubscriberGuard[int]{g, g2} {
		ev := RecvWithin(t, g, timeout)
		v, _ := ev.Worker()
		assert.Equal(t, 9, v)
	}
}

func TestSubscribeCreateError(t *testing.T) {
	src := NewScriptSource[int](0)
	rec := NewRecorder()
	sup := newTestSupervisor(src, rec, nil)

	createErr := errors.New("device missing")
	src.FailCreates(1, createErr)

	g, err := sup.Subscribe()
	require.Error(t, err)
	assert.Nil(t, g)
	assert.ErrorIs(t, err, createErr)

	var ce *r.CreateError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "test", ce.GetSupervisorName())

	// the thread state is left untouched
	assert.Equal(t, r.Liveness{Generation: 0, State: r.Terminated}, sup.Liveness())
	assert.Equal(t, 0, sup.Status().Receivers)
	assert.Equal(t, 1, rec.Count(SpawnFailed()))

	g, err = sup.Subscribe()
	require.NoError(t, err)
	defer g.Close()
	assert.Equal(t, uint64(1), g.Generation())
}

func TestNilCapabilityIsACreateError(t *testing.T) {
	factory := r.NewFactory[int](func() (r.Worker[int], r.Waker, error) {
		return nil, nil, nil
	})
	sup := r.New[int]("test", factory)

	_, err := sup.Subscribe()
	var ce *r.CreateError
	require.ErrorAs(t, err, &ce)
}

func TestConcurrentSubscribesSpawnOneThread(t *testing.T) {
	src := NewScriptSource[int](0)
	rec := NewRecorder()
	sup := newTestSupervisor(src, rec, nil)

	const subscribers = 32
	guards := make([]*r.SubscriberGuard[int], subscribers)
	var wg sync.WaitGroup
	for i := 0; i < subscribers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			g, err := sup.Subscribe()
			assert.NoError(t, err)
			guards[i] = g
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, src.CreateCount())
	assert.Equal(t, subscribers, sup.Status().Receivers)
	for _, g := range guards {
		require.NotNil(t, g)
		assert.Equal(t, uint64(1), g.Generation())
	}

	for _, g := range guards {
		wg.Add(1)
		go func(g *r.SubscriberGuard[int]) {
			defer wg.Done()
			_ = g.Close()
		}(g)
	}
	wg.Wait()

	require.NoError(t, WaitDone(sup.Done(), timeout))
	assert.Equal(t, 1, rec.Count(HasTag(r.ThreadSpawned)))
	assert.Equal(t, 0, src.OpenWorkers())
}

func TestSubscribeWhileLastSubscriberLeaves(t *testing.T) {
	src := NewScriptSource[int](0)
	rec := NewRecorder()
	sup := newTestSupervisor(src, rec, nil)

	for i := 0; i < 100; i++ {
		g1, err := sup.Subscribe()
		require.NoError(t, err)

		var g2 *r.SubscriberGuard[int]
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = g1.Close()
		}()
		go func() {
			defer wg.Done()
			var subErr error
			g2, subErr = sup.Subscribe()
			assert.NoError(t, subErr)
		}()
		wg.Wait()
		require.NotNil(t, g2)

		// whatever happened, the new subscriber is served by a running thread
		src.Push(Emit(i))
		ev := RecvWithin(t, g2, timeout)
		v, ok := ev.Worker()
		require.True(t, ok)
		assert.Equal(t, i, v)

		require.NoError(t, g2.Close())
		require.NoError(t, WaitDone(sup.Done(), timeout))
	}

	// every generation either got reused or retired, no worker leaked
	require.Eventually(t, func() bool { return src.OpenWorkers() == 0 }, timeout, time.Millisecond)
}

func TestLaggingSubscriber(t *testing.T) {
	src := NewScriptSource[int](0)
	rec := NewRecorder()
	sup := newTestSupervisor(src, rec, nil, r.WithChannelCapacity(1))

	slow, err := sup.Subscribe()
	require.NoError(t, err)
	defer slow.Close()
	fast, err := sup.Subscribe()
	require.NoError(t, err)
	defer fast.Close()

	for i := 1; i <= 3; i++ {
		src.Push(Emit(i))
		ev := RecvWithin(t, fast, timeout)
		v, _ := ev.Worker()
		require.Equal(t, i, v)
	}

	assert.Equal(t, uint64(2), slow.Lagged())
	ev := RecvWithin(t, slow, timeout)
	v, _ := ev.Worker()
	assert.Equal(t, 3, v)
	assert.Equal(t, uint64(0), fast.Lagged())
}

func TestPanickingNotifierIsIgnored(t *testing.T) {
	src := NewScriptSource[int](0)
	rec := NewRecorder()
	sup := newTestSupervisor(
		src,
		rec,
		nil,
		r.WithNotifier(func(r.Notification) { panic("notifier failure") }),
	)

	g, err := sup.Subscribe()
	require.NoError(t, err)
	src.Push(Emit(1))
	ev := RecvWithin(t, g, timeout)
	v, _ := ev.Worker()
	assert.Equal(t, 1, v)

	require.NoError(t, g.Close())
	require.NoError(t, WaitDone(sup.Done(), timeout))
	assert.True(t, rec.WaitTill(ThreadStopped(1), timeout))
}

func TestWakeFailureIsTolerated(t *testing.T) {
	wakeErr := errors.New("wake failed")
	stopCh := make(chan struct{})
	var once sync.Once

	factory := r.NewFactory[int](func() (r.Worker[int], r.Waker, error) {
		worker := r.WorkerFunc[int](
			func(*r.EventSender[int]) r.Continuation {
				<-stopCh
				return r.Continue
			},
			nil,
		)
		waker := r.WakerFunc(func() error {
			once.Do(func() { close(stopCh) })
			return wakeErr
		})
		return worker, waker, nil
	})

	rec := NewRecorder()
	sup := r.New[int]("test", factory, r.WithNotifier(rec.Notifier()))

	g, err := sup.Subscribe()
	require.NoError(t, err)
	assert.NoError(t, g.Close())
	require.NoError(t, WaitDone(sup.Done(), timeout))

	fails := rec.Filter(HasTag(r.WakeFailed))
	require.Len(t, fails, 1)
	assert.ErrorIs(t, fails[0].Err(), wakeErr)
}

// slowCloseFactory builds workers whose Close takes a while to release the
// resource they own; it records the max number of simultaneously open workers
type slowCloseFactory struct {
	mux     sync.Mutex
	open    int
	maxOpen int
	delay   time.Duration
}

func (f *slowCloseFactory) maxOpenWorkers() int {
	f.mux.Lock()
	defer f.mux.Unlock()
	return f.maxOpen
}

func (f *slowCloseFactory) factory() r.Factory[int] {
	return r.NewFactory[int](func() (r.Worker[int], r.Waker, error) {
		f.mux.Lock()
		f.open++
		if f.open > f.maxOpen {
			f.maxOpen = f.open
		}
		f.mux.Unlock()

		wakeCh := make(chan struct{}, 1)
		worker := r.WorkerFunc[int](
			func(*r.EventSender[int]) r.Continuation {
				<-wakeCh
				return r.Continue
			},
			func() error {
				time.Sleep(f.delay)
				f.mux.Lock()
				f.open--
				f.mux.Unlock()
				return nil
			},
		)
		waker := r.WakerFunc(func() error {
			select {
			case wakeCh <- struct{}{}:
			default:
			}
			return nil
		})
		return worker, waker, nil
	}, r.WithBackoff(0, 0))
}

func TestRelaunchWaitsForPreviousWorkerRelease(t *testing.T) {
	f := &slowCloseFactory{delay: 100 * time.Millisecond}
	sup := r.New[int]("test", f.factory())

	g1, err := sup.Subscribe()
	require.NoError(t, err)
	require.NoError(t, g1.Close())

	require.Eventually(t, func() bool {
		return sup.Liveness().State == r.Terminated
	}, timeout, time.Millisecond)

	g2, err := sup.Subscribe()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), g2.Generation())
	require.NoError(t, g2.Close())
	require.NoError(t, WaitDone(sup.Done(), timeout))

	assert.Equal(t, 1, f.maxOpenWorkers())
}

func TestStopReleasesWorkerBeforeRelaunch(t *testing.T) {
	f := &slowCloseFactory{delay: 100 * time.Millisecond}
	var stopNext atomic.Bool
	base := f.factory()
	factory := r.NewFactory[int](func() (r.Worker[int], r.Waker, error) {
		worker, waker, err := base.Create()
		if err != nil {
			return nil, nil, err
		}
		stopping := r.WorkerFunc[int](
			func(es *r.EventSender[int]) r.Continuation {
				if stopNext.CompareAndSwap(true, false) {
					return r.Stop
				}
				return worker.PollOnce(es)
			},
			worker.Close,
		)
		return stopping, waker, nil
	})
	sup := r.New[int]("test", factory)

	g1, err := sup.Subscribe()
	require.NoError(t, err)
	defer g1.Close()

	stopNext.Store(true)
	// the thread may stop before the wake lands
	if err := sup.Wake(); err != nil {
		require.ErrorIs(t, err, r.ErrNoWaker)
	}
	require.Eventually(t, func() bool {
		return sup.Liveness().State == r.Terminated
	}, timeout, time.Millisecond)

	g2, err := sup.Subscribe()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), g2.Generation())
	assert.Equal(t, 1, f.maxOpenWorkers())
	require.NoError(t, g2.Close())
}
