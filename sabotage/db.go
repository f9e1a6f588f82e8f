package sabotage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const defaultPeriod = time.Second

// ErrPlanNotFound is returned when operating on a plan that was never
// inserted
var ErrPlanNotFound = errors.New("sabotage plan not found")

// DB is the record that contains all the sabotage plans we want to execute,
// it also keeps track of all the supervisors that can be sabotaged.
type DB struct {
	ll logrus.FieldLogger

	mux     sync.Mutex
	targets map[string]*target
	plans   map[string]*planState
}

// NewDB creates an empty sabotage DB
func NewDB(ll logrus.FieldLogger) *DB {
	return &DB{
		ll:      ll,
		targets: make(map[string]*target),
		plans:   make(map[string]*planState),
	}
}

// getTarget returns the target with the given name, creating it when it does
// not exist. The DB lock must be held.
func (db *DB) getTarget(name string) *target {
	t, ok := db.targets[name]
	if !ok {
		t = &target{faults: make(chan Fault, 1)}
		db.targets[name] = t
	}
	return t
}

// InsertPlan inserts a sabotage plan in this DB
func (db *DB) InsertPlan(p Plan) error {
	if p.Name == "" {
		return errors.New("invalid input: plan name is empty")
	}
	if p.Target == "" {
		return errors.New("invalid input: plan target is empty")
	}
	if p.Fault != RestartFault && p.Fault != PanicFault {
		return fmt.Errorf("invalid input: unknown fault %d", p.Fault)
	}
	if p.Period <= 0 {
		p.Period = defaultPeriod
	}

	db.mux.Lock()
	defer db.mux.Unlock()
	if _, ok := db.plans[p.Name]; ok {
		return fmt.Errorf("sabotage plan %s already exists", p.Name)
	}
	db.plans[p.Name] = &planState{plan: p}
	return nil
}

// RemovePlan removes a sabotage plan from this DB, stopping it if it is
// running
func (db *DB) RemovePlan(name string) error {
	if err := db.StopPlan(name); err != nil {
		return err
	}
	db.mux.Lock()
	defer db.mux.Unlock()
	delete(db.plans, name)
	return nil
}

// StartPlan spawns a goroutine that executes a known sabotage plan.
func (db *DB) StartPlan(name string) error {
	db.mux.Lock()
	defer db.mux.Unlock()

	ps, ok := db.plans[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPlanNotFound, name)
	}
	if ps.running() {
		return fmt.Errorf("sabotage plan %s is already running", name)
	}

	ctx, cancel := context.WithCancel(context.Background())
	ps.cancel = cancel
	ps.injected = 0
	ps.done = make(chan struct{})
	go db.runPlan(ctx, ps)
	return nil
}

// StopPlan terminates the goroutine that is executing a sabotage plan, it
// blocks until the goroutine is done.
func (db *DB) StopPlan(name string) error {
	db.mux.Lock()
	ps, ok := db.plans[name]
	if !ok {
		db.mux.Unlock()
		return fmt.Errorf("%w: %s", ErrPlanNotFound, name)
	}
	cancel, done := ps.cancel, ps.done
	db.mux.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

// Wait blocks until the given plan stops running or the context is done
func (db *DB) Wait(ctx context.Context, name string) error {
	db.mux.Lock()
	ps, ok := db.plans[name]
	if !ok {
		db.mux.Unlock()
		return fmt.Errorf("%w: %s", ErrPlanNotFound, name)
	}
	done := ps.done
	db.mux.Unlock()

	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ListPlans returns all the plans in this DB sorted by name
func (db *DB) ListPlans() []PlanStatus {
	db.mux.Lock()
	defer db.mux.Unlock()
	out := make([]PlanStatus, 0, len(db.plans))
	for _, ps := range db.plans {
		out = append(out, PlanStatus{Plan: ps.plan, Running: ps.running(), Injected: ps.injected})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ListTargets returns the names of all the supervisors that were wrapped with
// this DB, and how many workers they created
func (db *DB) ListTargets() map[string]uint32 {
	db.mux.Lock()
	defer db.mux.Unlock()
	out := make(map[string]uint32, len(db.targets))
	for name, t := range db.targets {
		out[name] = t.workers
	}
	return out
}

// runPlan injects a fault on every period until the plan is stopped or the
// attempts are exhausted
func (db *DB) runPlan(ctx context.Context, ps *planState) {
	defer func() {
		db.mux.Lock()
		ps.cancel = nil
		close(ps.done)
		db.mux.Unlock()
	}()

	ticker := time.NewTicker(ps.plan.Period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if !db.inject(ps.plan.Target, ps.plan.Fault) {
			continue
		}

		db.mux.Lock()
		ps.injected++
		injected := ps.injected
		db.mux.Unlock()

		db.ll.WithFields(logrus.Fields{
			"plan":     ps.plan.Name,
			"target":   ps.plan.Target,
			"fault":    ps.plan.Fault.String(),
			"injected": injected,
		}).Info("sabotage injected")

		if ps.plan.Attempts > 0 && injected >= ps.plan.Attempts {
			return
		}
	}
}

// inject delivers a fault to the running worker of the given target and
// wakes it up. It returns false when a previous fault is still pending.
func (db *DB) inject(targetName string, fault Fault) bool {
	db.mux.Lock()
	t := db.getTarget(targetName)
	waker := t.waker
	db.mux.Unlock()

	select {
	case t.faults <- fault:
	default:
		return false
	}
	if waker != nil {
		if err := waker.Wake(); err != nil {
			db.ll.WithError(err).WithField("target", targetName).Warn("sabotage could not wake worker")
		}
	}
	return true
}
