/*
Package rst offers an API to run a blocking resource (a file descriptor, a
listener, a signal source) on a single dedicated worker thread that is shared
by every interested consumer, restarted when it reports recoverable faults,
and stopped as soon as nobody is listening anymore.

Why Resilient Supervised Threads

Reading from a blocking resource usually means parking a goroutine on a
syscall. When several parts of a program want the same stream, we end up with
either many goroutines competing for the same resource, or one goroutine that
lives forever and cannot be stopped because it is blocked in a read.

A Supervisor solves both problems:

* At most one worker thread runs per Supervisor; every consumer receives every
event sent after it subscribed.

* The thread is created lazily on the first subscription and it stops
cooperatively once the last subscriber leaves; a later subscription relaunches
it.

* The worker gets restarted in place when it asks for it, subject to a restart
budget; a panic is never restarted.

Worker and Waker

A Worker performs one bounded unit of work per PollOnce call, and returns a
Continuation telling the loop what to do next. A Waker interrupts the blocking
call the Worker is parked in. Both are created together by a Factory so they
share the same underlying resource

	factory := rst.NewFactory[[]byte](
		// (1)
		func() (rst.Worker[[]byte], rst.Waker, error) {
			return newPipeReader()
		},
		// (2)
		rst.WithMaxAttempts(5),
		// (3)
		rst.WithRestartWindow(time.Minute),
		// (4)
		rst.WithBackoff(100*time.Millisecond, 5*time.Second),
	)

The first argument (1) is the function that allocates the resource. It is
called once per thread generation and once per restart.

The second (2) and third (3) arguments indicate that a worker thread may be
restarted at most 5 times per minute; once the budget is surpassed all
subscribers receive a RestartPolicyExhausted shutdown event.

The fourth argument (4) sets an exponential delay before each restart attempt.

Supervisor

To create a Supervisor, you need a name (for tracing purposes) and a Factory

	sup := rst.New[[]byte]("stdin", factory, rst.WithNotifier(logNotifier))

Consumers call Subscribe, and they must close the returned guard once they are
done

	guard, err := sup.Subscribe()
	if err != nil {
		return err
	}
	defer guard.Close()

	for ev := range guard.Events() {
		if payload, ok := ev.Worker(); ok {
			// business logic here
			continue
		}
		reason, _ := ev.Shutdown()
		return fmt.Errorf("worker thread shut down (%s): %w", reason, ev.Err())
	}

Closing the guard wakes the worker thread, which notices it has no subscribers
left and exits. A Supervisor that never spawned a thread costs nothing.
*/
package rst
