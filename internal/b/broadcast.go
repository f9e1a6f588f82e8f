package b

// This file contains a multi-consumer broadcast channel. A single long-lived
// Sender fans values out to every Receiver that is subscribed at the moment of
// the send; receivers that subscribe later never observe earlier values.

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// DefaultCapacity is the number of values a Receiver buffers before the oldest
// buffered value gets discarded in favour of a new one.
const DefaultCapacity = 64

// ErrReceiverClosed is returned by Receiver.Recv once the receiver has been
// closed.
var ErrReceiverClosed = errors.New("broadcast receiver is closed")

// Sender is the send side of a broadcast channel. It is created once and
// shared by every producer and every receiver; it never gets closed.
type Sender[T any] struct {
	mux       sync.Mutex
	capacity  int
	receivers map[*Receiver[T]]struct{}
	count     atomic.Int64
}

// NewSender creates a Sender whose receivers buffer up to capacity values. A
// capacity lower than one is replaced with DefaultCapacity.
func NewSender[T any](capacity int) *Sender[T] {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Sender[T]{
		capacity:  capacity,
		receivers: make(map[*Receiver[T]]struct{}),
	}
}

// Subscribe registers a new Receiver. The receiver count is incremented before
// this function returns.
func (s *Sender[T]) Subscribe() *Receiver[T] {
	r := &Receiver[T]{
		sender: s,
		ch:     make(chan T, s.capacity),
	}
	s.mux.Lock()
	defer s.mux.Unlock()
	s.receivers[r] = struct{}{}
	s.count.Add(1)
	return r
}

// ReceiverCount returns the number of receivers alive at the moment of the
// call. It never blocks.
func (s *Sender[T]) ReceiverCount() int {
	return int(s.count.Load())
}

// Send delivers the given value to every subscribed receiver and returns how
// many receivers got it. Send never blocks on a slow receiver: when a
// receiver's buffer is full, its oldest value is dropped and accounted as lag.
func (s *Sender[T]) Send(v T) int {
	s.mux.Lock()
	defer s.mux.Unlock()
	for r := range s.receivers {
		r.push(v)
	}
	return len(s.receivers)
}

// unsubscribe removes the receiver from the set, it returns false if the
// receiver was removed already.
func (s *Sender[T]) unsubscribe(r *Receiver[T]) bool {
	s.mux.Lock()
	defer s.mux.Unlock()
	if _, ok := s.receivers[r]; !ok {
		return false
	}
	delete(s.receivers, r)
	s.count.Add(-1)
	// no more sends can happen on this channel, as Send holds the same lock
	close(r.ch)
	return true
}

// Receiver is the receive side of a broadcast channel. Each receiver observes
// the values sent after it subscribed, in the order they were sent.
type Receiver[T any] struct {
	sender *Sender[T]
	ch     chan T
	lagged atomic.Uint64
	closed atomic.Bool
}

// push is only called while holding the sender lock
func (r *Receiver[T]) push(v T) {
	select {
	case r.ch <- v:
		return
	default:
	}
	// buffer is full, discard the oldest value
	select {
	case <-r.ch:
		r.lagged.Add(1)
	default:
	}
	select {
	case r.ch <- v:
	default:
		r.lagged.Add(1)
	}
}

// C returns the channel values are delivered on. The channel gets closed when
// the receiver is closed.
func (r *Receiver[T]) C() <-chan T {
	return r.ch
}

// Recv blocks until a value is available, the given context is done, or the
// receiver is closed.
func (r *Receiver[T]) Recv(ctx context.Context) (T, error) {
	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case v, ok := <-r.ch:
		if !ok {
			return zero, ErrReceiverClosed
		}
		return v, nil
	}
}

// Lagged returns how many values this receiver lost because its buffer was
// full.
func (r *Receiver[T]) Lagged() uint64 {
	return r.lagged.Load()
}

// IsClosed indicates if Close was called on this receiver.
func (r *Receiver[T]) IsClosed() bool {
	return r.closed.Load()
}

// Close unsubscribes the receiver. The receiver count observed through
// Sender.ReceiverCount is decremented before Close returns. Calling Close more
// than once is a no-op.
func (r *Receiver[T]) Close() {
	if r.closed.Swap(true) {
		return
	}
	r.sender.unsubscribe(r)
}
