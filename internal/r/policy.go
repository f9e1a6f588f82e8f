package r

import (
	"math"
	"time"
)

// UnlimitedAttempts is a RestartPolicy.MaxAttempts value that disables the
// restart budget.
const UnlimitedAttempts uint32 = math.MaxUint32

// RestartPolicy specifies how many times a worker thread may recreate its
// Worker/Waker pair after a Restart continuation, and how long it waits before
// each attempt.
//
// # Attempts and window
//
// MaxAttempts restarts are allowed per thread lifetime. When Window is not
// zero, attempts are counted from the first attempt in the current window;
// once Window has elapsed since that first attempt, the count starts over.
//
// # Backoff
//
// Backoff is the delay before the first attempt. When MaxBackoff is bigger
// than Backoff, the delay doubles on every consecutive attempt until it
// reaches MaxBackoff; otherwise every attempt waits Backoff.
type RestartPolicy struct {
	MaxAttempts uint32
	Window      time.Duration
	Backoff     time.Duration
	MaxBackoff  time.Duration
}

// DefaultRestartPolicy returns the policy used when a Factory does not
// specify one: 3 attempts per thread lifetime, starting at 100 milliseconds
// and doubling up to 1 second.
func DefaultRestartPolicy() RestartPolicy {
	return RestartPolicy{
		MaxAttempts: 3,
		Window:      0,
		Backoff:     100 * time.Millisecond,
		MaxBackoff:  1 * time.Second,
	}
}

// restartToleranceResult indicates the result of a restart tolerance check
type restartToleranceResult uint32

const (
	// restartToleranceSurpassed indicates the restart tolerance has been surpassed
	restartToleranceSurpassed restartToleranceResult = iota
	// incRestartCount indicates that we should allow the restart to happen
	incRestartCount
	// resetRestartCount indicates to reset the restart count and time window
	resetRestartCount
)

func (rtr restartToleranceResult) String() string {
	switch rtr {
	case restartToleranceSurpassed:
		return "restartToleranceSurpassed"
	case incRestartCount:
		return "incRestartCount"
	case resetRestartCount:
		return "resetRestartCount"
	default:
		return "<Unknown restartToleranceResult>"
	}
}

func (rp RestartPolicy) isWithinRestartWindow(beginTime time.Time) bool {
	// when the window is 0, it means we never forget restarts happened
	return rp.Window == 0 || time.Since(beginTime) < rp.Window
}

// check verifies if the restart tolerance has been reached with the given
// input values
func (rp RestartPolicy) check(restartCount uint32, beginTime time.Time) restartToleranceResult {
	if beginTime == (time.Time{}) || rp.isWithinRestartWindow(beginTime) {
		if rp.MaxAttempts == UnlimitedAttempts {
			return incRestartCount
		}
		if rp.MaxAttempts == 0 || rp.MaxAttempts < restartCount+1 {
			return restartToleranceSurpassed
		}
		return incRestartCount
	}
	return resetRestartCount
}

// backoffDuration returns the delay to wait before the given restart attempt
// (starting at 1).
func (rp RestartPolicy) backoffDuration(attempt uint32) time.Duration {
	if attempt == 0 || rp.Backoff <= 0 {
		return 0
	}
	if rp.MaxBackoff <= rp.Backoff {
		return rp.Backoff
	}
	dur := rp.Backoff
	for i := uint32(1); i < attempt; i++ {
		dur *= 2
		if dur >= rp.MaxBackoff {
			return rp.MaxBackoff
		}
	}
	return dur
}

// restartBudget keeps track of the restart attempts of a single worker
// thread. It is only accessed from the worker thread.
type restartBudget struct {
	policy           RestartPolicy
	restartCount     uint32
	restartBeginTime time.Time
	totalAttempts    uint32
}

func newRestartBudget(policy RestartPolicy) *restartBudget {
	return &restartBudget{policy: policy}
}

// consume registers a new restart attempt. If the attempt surpasses the
// policy, it returns false without modifying the budget; otherwise it returns
// true and the delay to wait before the attempt.
func (rb *restartBudget) consume() (time.Duration, bool) {
	switch rb.policy.check(rb.restartCount, rb.restartBeginTime) {
	case restartToleranceSurpassed:
		return 0, false
	case incRestartCount:
		if rb.restartBeginTime == (time.Time{}) {
			rb.restartBeginTime = time.Now()
		}
		if rb.restartCount < UnlimitedAttempts {
			rb.restartCount++
		}
	case resetRestartCount:
		// not zero given we need to account for the attempt that is happening
		rb.restartCount = 1
		rb.restartBeginTime = time.Now()
	default:
		panic("Invalid implementation of restartTolerance values")
	}
	rb.totalAttempts++
	return rb.policy.backoffDuration(rb.restartCount), true
}
