package rtest

import (
	"errors"
	"fmt"
	"sync"

	"github.com/capatazlib/go-rst/internal/r"
)

type stepTag uint32

const (
	emitStep stepTag = iota
	restartStep
	stopStep
	panicStep
	invalidStep
)

// Step is a single instruction executed by a scripted worker on one PollOnce
// call
type Step[E any] struct {
	tag      stepTag
	value    E
	panicVal interface{}
}

// Emit is a Step that sends the given value to the subscribers and continues
func Emit[E any](v E) Step[E] {
	return Step[E]{tag: emitStep, value: v}
}

// Restart is a Step that requests a worker restart
func Restart[E any]() Step[E] {
	return Step[E]{tag: restartStep}
}

// Stop is a Step that makes the worker loop exit
func Stop[E any]() Step[E] {
	return Step[E]{tag: stopStep}
}

// Panic is a Step that panics inside PollOnce with the given value
func Panic[E any](v interface{}) Step[E] {
	return Step[E]{tag: panicStep, panicVal: v}
}

// Invalid is a Step that returns a Continuation value the worker loop does not
// know about
func Invalid[E any]() Step[E] {
	return Step[E]{tag: invalidStep}
}

// ScriptSource is a fake blocking resource. Every worker it creates blocks in
// PollOnce until a Step is pushed or its paired waker is invoked; steps are
// shared across worker generations, so a step pushed while a restart is in
// flight gets executed by the restarted worker.
type ScriptSource[E any] struct {
	steps chan Step[E]

	mux       sync.Mutex
	creates   int
	closes    int
	wakes     int
	failNext  int
	createErr error
	live      map[int]bool
}

// NewScriptSource creates a ScriptSource with room for the given number of
// pending steps
func NewScriptSource[E any](buffer int) *ScriptSource[E] {
	if buffer < 1 {
		buffer = 16
	}
	return &ScriptSource[E]{
		steps: make(chan Step[E], buffer),
		live:  make(map[int]bool),
	}
}

// Push enqueues a step for the running worker (or the next one)
func (s *ScriptSource[E]) Push(steps ...Step[E]) {
	for _, step := range steps {
		s.steps <- step
	}
}

// FailCreates makes the next n calls to Create fail with the given error
func (s *ScriptSource[E]) FailCreates(n int, err error) {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.failNext = n
	s.createErr = err
}

// CreateCount returns how many Worker/Waker pairs were created successfully
func (s *ScriptSource[E]) CreateCount() int {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.creates
}

// CloseCount returns how many workers were closed
func (s *ScriptSource[E]) CloseCount() int {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.closes
}

// WakeCount returns how many times a waker was invoked
func (s *ScriptSource[E]) WakeCount() int {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.wakes
}

// OpenWorkers returns how many created workers were not closed yet
func (s *ScriptSource[E]) OpenWorkers() int {
	s.mux.Lock()
	defer s.mux.Unlock()
	return len(s.live)
}

// Create builds a matched Worker/Waker pair; it satisfies r.CreateFn
func (s *ScriptSource[E]) Create() (r.Worker[E], r.Waker, error) {
	s.mux.Lock()
	defer s.mux.Unlock()

	if s.failNext > 0 {
		s.failNext--
		err := s.createErr
		if err == nil {
			err = errors.New("scripted create failure")
		}
		return nil, nil, err
	}

	s.creates++
	w := &scriptWorker[E]{
		id:     s.creates,
		source: s,
		wakeCh: make(chan struct{}, 1),
	}
	s.live[w.id] = true
	return w, scriptWaker[E]{worker: w}, nil
}

// Factory returns a r.Factory that creates workers from this source
func (s *ScriptSource[E]) Factory(opts ...r.FactoryOpt) r.Factory[E] {
	return r.NewFactory[E](s.Create, opts...)
}

type scriptWorker[E any] struct {
	id     int
	source *ScriptSource[E]
	wakeCh chan struct{}

	closeMux sync.Mutex
	closed   bool
}

func (w *scriptWorker[E]) PollOnce(es *r.EventSender[E]) r.Continuation {
	select {
	case <-w.wakeCh:
		return r.Continue
	case step := <-w.source.steps:
		switch step.tag {
		case emitStep:
			es.Send(step.value)
			return r.Continue
		case restartStep:
			return r.Restart
		case stopStep:
			return r.Stop
		case panicStep:
			panic(step.panicVal)
		default:
			return r.Continuation(99)
		}
	}
}

func (w *scriptWorker[E]) Close() error {
	w.closeMux.Lock()
	defer w.closeMux.Unlock()
	if w.closed {
		return fmt.Errorf("worker %d closed twice", w.id)
	}
	w.closed = true

	w.source.mux.Lock()
	defer w.source.mux.Unlock()
	w.source.closes++
	delete(w.source.live, w.id)
	return nil
}

type scriptWaker[E any] struct {
	worker *scriptWorker[E]
}

func (wk scriptWaker[E]) Wake() error {
	wk.worker.source.mux.Lock()
	wk.worker.source.wakes++
	wk.worker.source.mux.Unlock()

	select {
	case wk.worker.wakeCh <- struct{}{}:
	default:
	}
	return nil
}
