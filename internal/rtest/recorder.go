package rtest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/capatazlib/go-rst/internal/r"
)

// Recorder accumulates the notifications reported by a Supervisor, so they can
// be asserted once the side-effects under test happened
type Recorder struct {
	mux     sync.Mutex
	buffer  []r.Notification
	updated chan struct{}
}

// NewRecorder creates an empty Recorder
func NewRecorder() *Recorder {
	return &Recorder{updated: make(chan struct{})}
}

// Notifier returns the r.Notifier that must be registered in the Supervisor
// with r.WithNotifier
func (rec *Recorder) Notifier() r.Notifier {
	return func(n r.Notification) {
		rec.mux.Lock()
		defer rec.mux.Unlock()
		rec.buffer = append(rec.buffer, n)
		close(rec.updated)
		rec.updated = make(chan struct{})
	}
}

// Snapshot returns a copy of all the notifications recorded so far
func (rec *Recorder) Snapshot() []r.Notification {
	rec.mux.Lock()
	defer rec.mux.Unlock()
	out := make([]r.Notification, len(rec.buffer))
	copy(out, rec.buffer)
	return out
}

// Filter returns the recorded notifications that match the given predicate
func (rec *Recorder) Filter(pred NotificationP) []r.Notification {
	var out []r.Notification
	for _, n := range rec.Snapshot() {
		if pred.Call(n) {
			out = append(out, n)
		}
	}
	return out
}

// Count returns how many recorded notifications match the given predicate
func (rec *Recorder) Count(pred NotificationP) int {
	return len(rec.Filter(pred))
}

// WaitTill blocks until a notification matching the given predicate was
// recorded, or the timeout is reached (in which case it returns false)
func (rec *Recorder) WaitTill(pred NotificationP, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	for {
		rec.mux.Lock()
		for _, n := range rec.buffer {
			if pred.Call(n) {
				rec.mux.Unlock()
				return true
			}
		}
		updated := rec.updated
		rec.mux.Unlock()

		select {
		case <-updated:
		case <-ctx.Done():
			return false
		}
	}
}

// ErrTimeout is returned by the helpers of this package when an expected
// outcome does not happen in time
var ErrTimeout = errors.New("timed out")

// WaitDone blocks until the given channel is closed or the timeout is reached
func WaitDone(done <-chan struct{}, timeout time.Duration) error {
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return ErrTimeout
	}
}
