// Package sabotage injects faults into the workers of a Supervisor on demand,
// so the restart and fault handling of a running system can be exercised.
package sabotage

import (
	"context"
	"fmt"
	"time"

	"github.com/capatazlib/go-rst/rst"
)

// Fault is the kind of failure a sabotage plan injects
type Fault uint32

const (
	// ignore zero value of iota
	_ Fault = iota
	// RestartFault makes the worker request a restart
	RestartFault
	// PanicFault makes the worker panic
	PanicFault
)

// String returns a string representation of the current Fault
func (f Fault) String() string {
	switch f {
	case RestartFault:
		return "restart"
	case PanicFault:
		return "panic"
	default:
		return "<Unknown>"
	}
}

// ParseFault parses the string representation of a Fault
func ParseFault(s string) (Fault, error) {
	switch s {
	case "restart":
		return RestartFault, nil
	case "panic":
		return PanicFault, nil
	default:
		return 0, fmt.Errorf("unknown fault %q", s)
	}
}

// Plan describes a sabotage execution. This indicates which
// supervisor gets the faults, which kind of fault, how often and how many
// times.
type Plan struct {
	// name of the plan for manipulation from the API
	Name string
	// name of the supervisor that gets sabotaged
	Target string
	Fault  Fault
	// Duration between sabotage attempts (defaults to every second)
	Period time.Duration
	// Number of max attempts (if 0, infinitely)
	Attempts uint32
}

// PlanStatus is a Plan that includes an indication of if it is currently
// running, and how many faults it injected so far
type PlanStatus struct {
	Plan
	Running  bool
	Injected uint32
}

// planState is the runtime record of a Plan
type planState struct {
	plan     Plan
	injected uint32
	cancel   context.CancelFunc
	done     chan struct{}
}

func (ps *planState) running() bool {
	return ps.cancel != nil
}

// target is the metadata entry of a sabotaged supervisor
type target struct {
	// number of workers created for this target
	workers uint32
	// channel used to signal faults from the DB to the running worker
	faults chan Fault
	// waker of the latest created worker, used to interrupt it so it
	// observes the fault right away
	waker rst.Waker
}
