//go:build linux

// Package fdpoll streams the bytes readable from a file descriptor. The
// worker parks in poll(2) on the descriptor and on a self-pipe; the waker
// writes to the self-pipe to interrupt it.
package fdpoll

import (
	"errors"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/capatazlib/go-rst/rst"
)

// DefaultReadSize is the maximum number of bytes read per poll
const DefaultReadSize = 4096

// Chunk is the event emitted by a fdpoll worker. When EOF is true, the
// descriptor reached end of file and the worker thread stops.
type Chunk struct {
	Data []byte
	EOF  bool
}

// OpenFn returns the descriptor a worker reads from. When owned is true, the
// worker closes it when it gets discarded.
type OpenFn func() (fd int, owned bool, err error)

// NewFactory creates a Factory whose workers read from an already open
// descriptor (e.g. stdin); the descriptor is never closed by the workers.
func NewFactory(fd int, opts ...rst.FactoryOpt) rst.Factory[Chunk] {
	return NewFactoryWithOpen(func() (int, bool, error) { return fd, false, nil }, DefaultReadSize, opts...)
}

// NewFileFactory creates a Factory whose workers open the file at the given
// path on every creation, so a restart reopens it.
func NewFileFactory(path string, opts ...rst.FactoryOpt) rst.Factory[Chunk] {
	return NewFactoryWithOpen(
		func() (int, bool, error) {
			fd, err := unix.Open(path, unix.O_RDONLY|unix.O_CLOEXEC|unix.O_NONBLOCK, 0)
			if err != nil {
				return -1, false, &os.PathError{Op: "open", Path: path, Err: err}
			}
			return fd, true, nil
		},
		DefaultReadSize,
		opts...,
	)
}

// NewFactoryWithOpen creates a Factory whose workers read up to readSize
// bytes per poll from the descriptor returned by openFn
func NewFactoryWithOpen(openFn OpenFn, readSize int, opts ...rst.FactoryOpt) rst.Factory[Chunk] {
	if readSize <= 0 {
		readSize = DefaultReadSize
	}
	return rst.NewFactory[Chunk](
		func() (rst.Worker[Chunk], rst.Waker, error) {
			fd, owned, err := openFn()
			if err != nil {
				return nil, nil, err
			}
			pipe, err := newSelfPipe()
			if err != nil {
				if owned {
					_ = unix.Close(fd)
				}
				return nil, nil, err
			}
			w := &worker{fd: fd, owned: owned, pipe: pipe, buf: make([]byte, readSize)}
			return w, pipe, nil
		},
		opts...,
	)
}

// selfPipe is shared by a worker and its waker
type selfPipe struct {
	mux    sync.Mutex
	closed bool
	r, w   int
}

func newSelfPipe() (*selfPipe, error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC|unix.O_NONBLOCK); err != nil {
		return nil, os.NewSyscallError("pipe2", err)
	}
	return &selfPipe{r: fds[0], w: fds[1]}, nil
}

// Wake writes a byte to the self-pipe; it is a no-op once the worker closed
// the pipe
func (p *selfPipe) Wake() error {
	p.mux.Lock()
	defer p.mux.Unlock()
	if p.closed {
		return nil
	}
	_, err := unix.Write(p.w, []byte{1})
	if errors.Is(err, unix.EAGAIN) {
		// the pipe is full, the worker has pending wakes already
		return nil
	}
	if err != nil {
		return os.NewSyscallError("write", err)
	}
	return nil
}

func (p *selfPipe) drain() {
	var buf [64]byte
	for {
		n, err := unix.Read(p.r, buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}

func (p *selfPipe) close() error {
	p.mux.Lock()
	defer p.mux.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return errors.Join(unix.Close(p.r), unix.Close(p.w))
}

type worker struct {
	fd    int
	owned bool
	pipe  *selfPipe
	buf   []byte
}

func (w *worker) PollOnce(es *rst.EventSender[Chunk]) rst.Continuation {
	fds := []unix.PollFd{
		{Fd: int32(w.fd), Events: unix.POLLIN},
		{Fd: int32(w.pipe.r), Events: unix.POLLIN},
	}
	_, err := unix.Poll(fds, -1)
	if errors.Is(err, unix.EINTR) {
		return rst.Continue
	}
	if err != nil {
		return rst.Restart
	}

	if fds[1].Revents != 0 {
		w.pipe.drain()
		return rst.Continue
	}

	revents := fds[0].Revents
	if revents&unix.POLLNVAL != 0 {
		return rst.Restart
	}
	if revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) == 0 {
		return rst.Continue
	}

	n, err := unix.Read(w.fd, w.buf)
	switch {
	case errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR):
		return rst.Continue
	case err != nil:
		return rst.Restart
	case n == 0:
		es.Send(Chunk{EOF: true})
		return rst.Stop
	}

	data := make([]byte, n)
	copy(data, w.buf[:n])
	es.Send(Chunk{Data: data})
	return rst.Continue
}

func (w *worker) Close() error {
	err := w.pipe.close()
	if w.owned {
		err = errors.Join(err, unix.Close(w.fd))
	}
	return err
}
