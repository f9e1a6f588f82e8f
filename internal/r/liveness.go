package r

import (
	"sync"
)

// LivenessState indicates if the worker thread of a generation is running
type LivenessState uint32

const (
	// Terminated indicates there is no worker thread running; the next
	// subscription spawns a new one
	Terminated LivenessState = iota
	// Running indicates the worker thread is running; new subscriptions reuse it
	Running
)

// String returns a string representation of the current LivenessState
func (ls LivenessState) String() string {
	switch ls {
	case Running:
		return "Running"
	case Terminated:
		return "Terminated"
	default:
		return "<Unknown>"
	}
}

// Liveness is a snapshot of the state of a worker thread generation
type Liveness struct {
	Generation uint64
	State      LivenessState
}

// liveness offers thread-safe tracking of the state of a single worker thread
// generation. It is shared between the supervisor and the running thread so
// both agree on whether a relaunch is needed.
type liveness struct {
	mux        sync.Mutex
	generation uint64
	state      LivenessState
	done       chan struct{}
	finishOnce sync.Once
}

func newLiveness(generation uint64) *liveness {
	return &liveness{
		generation: generation,
		state:      Running,
		done:       make(chan struct{}),
	}
}

func (l *liveness) snapshot() Liveness {
	l.mux.Lock()
	defer l.mux.Unlock()
	return Liveness{Generation: l.generation, State: l.state}
}

func (l *liveness) isRunning() bool {
	l.mux.Lock()
	defer l.mux.Unlock()
	return l.state == Running
}

// markTerminated returns false if the liveness was already terminated
func (l *liveness) markTerminated() bool {
	l.mux.Lock()
	defer l.mux.Unlock()
	if l.state == Terminated {
		return false
	}
	l.state = Terminated
	return true
}

// finish signals the worker thread of this generation is gone
func (l *liveness) finish() {
	l.finishOnce.Do(func() {
		close(l.done)
	})
}

// wakerCell holds the Waker of the current generation. It is replaced on
// every spawn and restart and read fresh on every wake request.
type wakerCell struct {
	mux        sync.Mutex
	generation uint64
	waker      Waker
}

func newWakerCell() *wakerCell {
	return &wakerCell{}
}

func (wc *wakerCell) store(generation uint64, waker Waker) {
	wc.mux.Lock()
	defer wc.mux.Unlock()
	wc.generation = generation
	wc.waker = waker
}

// clear empties the cell only if it still belongs to the given generation, a
// newer generation may have been spawned already.
func (wc *wakerCell) clear(generation uint64) {
	wc.mux.Lock()
	defer wc.mux.Unlock()
	if wc.generation == generation {
		wc.waker = nil
	}
}

func (wc *wakerCell) load() Waker {
	wc.mux.Lock()
	defer wc.mux.Unlock()
	return wc.waker
}

// wake invokes the current Waker, if any. The lock is not held while waking.
func (wc *wakerCell) wake() error {
	waker := wc.load()
	if waker == nil {
		return ErrNoWaker
	}
	return waker.Wake()
}
