package sabotage

import (
	"fmt"

	"github.com/capatazlib/go-rst/rst"
)

// Wrap decorates the given Factory so that its workers are subject to the
// sabotage plans that target the given name. The restart policy of the
// wrapped factory is kept.
func Wrap[E any](db *DB, targetName string, factory rst.Factory[E]) rst.Factory[E] {
	db.mux.Lock()
	db.getTarget(targetName)
	db.mux.Unlock()
	return &sabotagedFactory[E]{db: db, targetName: targetName, inner: factory}
}

type sabotagedFactory[E any] struct {
	db         *DB
	targetName string
	inner      rst.Factory[E]
}

func (f *sabotagedFactory[E]) RestartPolicy() rst.RestartPolicy {
	return f.inner.RestartPolicy()
}

func (f *sabotagedFactory[E]) Create() (rst.Worker[E], rst.Waker, error) {
	worker, waker, err := f.inner.Create()
	if err != nil || worker == nil || waker == nil {
		return worker, waker, err
	}

	f.db.mux.Lock()
	t := f.db.getTarget(f.targetName)
	t.workers++
	t.waker = waker
	f.db.mux.Unlock()

	return &sabotagedWorker[E]{targetName: f.targetName, faults: t.faults, inner: worker}, waker, nil
}

type sabotagedWorker[E any] struct {
	targetName string
	faults     <-chan Fault
	inner      rst.Worker[E]
}

func (w *sabotagedWorker[E]) PollOnce(es *rst.EventSender[E]) rst.Continuation {
	select {
	case fault := <-w.faults:
		switch fault {
		case RestartFault:
			return rst.Restart
		case PanicFault:
			panic(fmt.Sprintf("sabotage: injected panic on %s", w.targetName))
		}
	default:
	}
	return w.inner.PollOnce(es)
}

func (w *sabotagedWorker[E]) Close() error {
	return w.inner.Close()
}
