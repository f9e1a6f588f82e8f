// Package netaccept emits an event for every TCP connection accepted on a
// listening address. The worker parks in Accept; the waker moves the listener
// deadline to the present to interrupt it.
package netaccept

import (
	"errors"
	"net"
	"os"
	"sync/atomic"
	"time"

	"github.com/capatazlib/go-rst/rst"
)

// Conn is the event emitted for every accepted connection
type Conn struct {
	RemoteAddr string    `json:"remote_addr"`
	LocalAddr  string    `json:"local_addr"`
	Accepted   time.Time `json:"accepted"`
}

// Handler takes ownership of an accepted connection; it runs on its own
// goroutine
type Handler func(net.Conn)

func closeHandler(conn net.Conn) {
	_ = conn.Close()
}

type settings struct {
	handler     Handler
	onListen    func(net.Addr)
	factoryOpts []rst.FactoryOpt
}

// Opt allows clients to tweak the listener workers
type Opt func(*settings)

// WithHandler sets the function that receives accepted connections. By
// default connections are closed right away.
func WithHandler(h Handler) Opt {
	return func(s *settings) {
		s.handler = h
	}
}

// WithOnListen registers a callback that receives the bound address every
// time a worker creates its listener
func WithOnListen(cb func(net.Addr)) Opt {
	return func(s *settings) {
		s.onListen = cb
	}
}

// WithFactoryOpts sets the restart policy options of the returned Factory
func WithFactoryOpts(opts ...rst.FactoryOpt) Opt {
	return func(s *settings) {
		s.factoryOpts = append(s.factoryOpts, opts...)
	}
}

// NewFactory creates a Factory whose workers listen on the given TCP address;
// every restart binds a new listener.
func NewFactory(addr string, opts ...Opt) rst.Factory[Conn] {
	s := settings{
		handler:  closeHandler,
		onListen: func(net.Addr) {},
	}
	for _, optFn := range opts {
		optFn(&s)
	}
	return rst.NewFactory[Conn](
		func() (rst.Worker[Conn], rst.Waker, error) {
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return nil, nil, err
			}
			tcpLn, ok := ln.(*net.TCPListener)
			if !ok {
				_ = ln.Close()
				return nil, nil, errors.New("netaccept: listener does not support deadlines")
			}
			s.onListen(tcpLn.Addr())
			w := &worker{ln: tcpLn, handler: s.handler}
			return w, rst.WakerFunc(w.wake), nil
		},
		s.factoryOpts...,
	)
}

type worker struct {
	ln      *net.TCPListener
	handler Handler
	pending atomic.Int64
}

func (w *worker) wake() error {
	w.pending.Add(1)
	err := w.ln.SetDeadline(time.Now())
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func (w *worker) PollOnce(es *rst.EventSender[Conn]) rst.Continuation {
	if err := w.ln.SetDeadline(time.Time{}); err != nil {
		if errors.Is(err, net.ErrClosed) {
			return rst.Stop
		}
		return rst.Restart
	}
	// a wake that happened before the deadline reset
	if w.pending.Swap(0) > 0 {
		return rst.Continue
	}

	conn, err := w.ln.Accept()
	switch {
	case errors.Is(err, os.ErrDeadlineExceeded):
		return rst.Continue
	case errors.Is(err, net.ErrClosed):
		return rst.Stop
	case err != nil:
		return rst.Restart
	}

	es.Send(Conn{
		RemoteAddr: conn.RemoteAddr().String(),
		LocalAddr:  conn.LocalAddr().String(),
		Accepted:   time.Now(),
	})
	go w.handler(conn)
	return rst.Continue
}

func (w *worker) Close() error {
	return w.ln.Close()
}
