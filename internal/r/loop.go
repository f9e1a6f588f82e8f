package r

// This file contains the loop executed by the dedicated worker thread

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"time"
)

// pollOnce calls Worker.PollOnce inside a fault boundary: a panic never
// crosses it, it gets converted into a *PanicError instead.
func pollOnce[E any](worker Worker[E], es *EventSender[E]) (cont Continuation, panicErr *PanicError) {
	defer func() {
		if panicVal := recover(); panicVal != nil {
			panicErr = newPanicError(panicVal, debug.Stack())
		}
	}()
	cont = worker.PollOnce(es)
	return cont, nil
}

// createWorker calls Factory.Create inside the same fault boundary as
// pollOnce.
func createWorker[E any](factory Factory[E]) (worker Worker[E], waker Waker, panicErr *PanicError, err error) {
	defer func() {
		if panicVal := recover(); panicVal != nil {
			panicErr = newPanicError(panicVal, debug.Stack())
		}
	}()
	worker, waker, err = factory.Create()
	if err == nil && (worker == nil || waker == nil) {
		err = errNilCapability
	}
	return worker, waker, nil, err
}

// closeWorker releases the resources of a worker; panics and errors are
// ignored, there is nothing meaningful to do about them at this point.
func closeWorker[E any](worker Worker[E]) {
	if worker == nil {
		return
	}
	defer func() {
		_ = recover()
	}()
	_ = worker.Close()
}

// runThread is the body of a worker thread generation. It returns when the
// worker stops, when there are no subscribers left, when the restart budget
// is exhausted or when the worker panics.
func (sup *Supervisor[E]) runThread(
	live *liveness,
	es *EventSender[E],
	worker Worker[E],
	policy RestartPolicy,
) {
	// the worker owns a blocking resource, it gets a dedicated OS thread
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	notifiers := sup.settings.notifiers

	// termination guard: it runs on every exit path, including faults. The
	// worker is nil when an exit path released it already.
	defer func() {
		sup.retire(live, es, worker, nil)
		live.finish()
		notifiers.notify(Notification{
			tag:        ThreadStopped,
			supName:    sup.name,
			generation: live.generation,
			receivers:  es.ReceiverCount(),
		})
	}()

	budget := newRestartBudget(policy)

	for {
		// always check the receiver count at the moment of the check, a new
		// subscriber may have joined right after the last one left
		if es.ReceiverCount() == 0 && sup.retireIfIdle(live, es, worker) {
			worker = nil
			return
		}

		cont, panicErr := pollOnce(worker, es)
		if panicErr != nil {
			sup.fault(live, es, worker, panicErr)
			worker = nil
			return
		}

		switch cont {
		case Continue:
			continue
		case Stop:
			sup.retire(live, es, worker, nil)
			worker = nil
			return
		case Restart:
			var ok bool
			worker, ok = sup.restartWorker(live, es, worker, budget)
			if !ok {
				return
			}
		default:
			sup.fault(
				live,
				es,
				worker,
				newPanicError(fmt.Errorf("invalid continuation value %d", cont), debug.Stack()),
			)
			worker = nil
			return
		}
	}
}

// fault releases the worker and broadcasts a Fault shutdown; no restart is
// attempted as a panic indicates a logic defect in the worker.
func (sup *Supervisor[E]) fault(
	live *liveness,
	es *EventSender[E],
	worker Worker[E],
	panicErr *PanicError,
) {
	ev := newShutdownEvent[E](live.generation, Fault, panicErr)
	sup.retire(live, es, worker, &ev)
	sup.settings.notifiers.notify(Notification{
		tag:        WorkerFaulted,
		supName:    sup.name,
		generation: live.generation,
		receivers:  es.ReceiverCount(),
		err:        panicErr,
	})
}

// restartWorker discards the given worker and creates a new Worker/Waker pair.
// Failed creations are retried until the budget is exhausted. When the second
// result is false the thread must exit; the returned worker is nil in that
// case and the generation was retired already.
func (sup *Supervisor[E]) restartWorker(
	live *liveness,
	es *EventSender[E],
	worker Worker[E],
	budget *restartBudget,
) (Worker[E], bool) {
	notifiers := sup.settings.notifiers

	// the old waker must not be used once its worker is closed
	sup.wakers.clear(live.generation)
	closeWorker(worker)

	var lastErr error
	for {
		// the budget check happens before the backoff delay
		delay, ok := budget.consume()
		if !ok {
			exhaustedErr := &RestartPolicyExhaustedError{
				supName:    sup.name,
				generation: live.generation,
				attempts:   budget.totalAttempts,
				window:     budget.policy.Window,
				lastErr:    lastErr,
			}
			ev := newShutdownEvent[E](live.generation, RestartPolicyExhausted, exhaustedErr)
			sup.retire(live, es, nil, &ev)
			notifiers.notify(Notification{
				tag:        RestartExhausted,
				supName:    sup.name,
				generation: live.generation,
				attempt:    budget.totalAttempts,
				receivers:  es.ReceiverCount(),
				err:        exhaustedErr,
			})
			return nil, false
		}

		if delay > 0 {
			time.Sleep(delay)
		}

		newWorker, newWaker, panicErr, err := createWorker(sup.factory)
		if panicErr != nil {
			closeWorker(newWorker)
			sup.fault(live, es, nil, panicErr)
			return nil, false
		}
		if err != nil {
			closeWorker(newWorker)
			lastErr = err
			notifiers.notify(Notification{
				tag:        RestartFailed,
				supName:    sup.name,
				generation: live.generation,
				attempt:    budget.totalAttempts,
				receivers:  es.ReceiverCount(),
				err:        err,
			})
			continue
		}

		sup.wakers.store(live.generation, newWaker)
		notifiers.notify(Notification{
			tag:        WorkerRestarted,
			supName:    sup.name,
			generation: live.generation,
			attempt:    budget.totalAttempts,
			receivers:  es.ReceiverCount(),
		})
		return newWorker, true
	}
}
