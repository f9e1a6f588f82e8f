// Package sigwatch emits an event for every OS signal delivered to the
// process out of a given set.
package sigwatch

import (
	"os"
	"os/signal"
	"time"

	"github.com/capatazlib/go-rst/rst"
)

// Signal is the event emitted for every delivered signal
type Signal struct {
	Name     string    `json:"name"`
	Received time.Time `json:"received"`
	Value    os.Signal `json:"-"`
}

// NewFactory creates a Factory whose workers relay the given signals. The
// signals are only intercepted while a worker thread is running.
func NewFactory(signals []os.Signal, opts ...rst.FactoryOpt) rst.Factory[Signal] {
	return rst.NewFactory[Signal](
		func() (rst.Worker[Signal], rst.Waker, error) {
			w := &worker{
				sigCh:  make(chan os.Signal, 8),
				wakeCh: make(chan struct{}, 1),
			}
			signal.Notify(w.sigCh, signals...)
			return w, rst.WakerFunc(w.wake), nil
		},
		opts...,
	)
}

type worker struct {
	sigCh  chan os.Signal
	wakeCh chan struct{}
}

func (w *worker) wake() error {
	select {
	case w.wakeCh <- struct{}{}:
	default:
	}
	return nil
}

func (w *worker) PollOnce(es *rst.EventSender[Signal]) rst.Continuation {
	select {
	case <-w.wakeCh:
		return rst.Continue
	case sig := <-w.sigCh:
		es.Send(Signal{Name: sig.String(), Received: time.Now(), Value: sig})
		return rst.Continue
	}
}

func (w *worker) Close() error {
	signal.Stop(w.sigCh)
	return nil
}
