package netaccept_test

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/capatazlib/go-rst/internal/rtest"
	"github.com/capatazlib/go-rst/rst"
	"github.com/capatazlib/go-rst/source/netaccept"
)

const timeout = 2 * time.Second

func TestAcceptEmitsConnections(t *testing.T) {
	addrCh := make(chan net.Addr, 1)
	handled := make(chan string, 1)

	sup := rst.New[netaccept.Conn](
		"accept",
		netaccept.NewFactory(
			"127.0.0.1:0",
			netaccept.WithOnListen(func(addr net.Addr) { addrCh <- addr }),
			netaccept.WithHandler(func(conn net.Conn) {
				handled <- conn.RemoteAddr().String()
				_ = conn.Close()
			}),
		),
	)

	guard, err := sup.Subscribe()
	require.NoError(t, err)
	defer guard.Close()

	addr := <-addrCh
	client, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer client.Close()

	ev := RecvWithin(t, guard, timeout)
	conn, ok := ev.Worker()
	require.True(t, ok)
	assert.Equal(t, client.LocalAddr().String(), conn.RemoteAddr)
	assert.Equal(t, addr.String(), conn.LocalAddr)
	assert.False(t, conn.Accepted.IsZero())

	select {
	case remote := <-handled:
		assert.Equal(t, client.LocalAddr().String(), remote)
	case <-time.After(timeout):
		t.Fatal("handler did not receive the connection")
	}
}

func TestWakeInterruptsAccept(t *testing.T) {
	rec := NewRecorder()
	sup := rst.New[netaccept.Conn](
		"accept",
		netaccept.NewFactory("127.0.0.1:0"),
		rst.WithNotifier(rec.Notifier()),
	)

	guard, err := sup.Subscribe()
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		assert.NoError(t, sup.Wake())
	}
	AssertNoEvent(t, guard, 20*time.Millisecond)

	require.NoError(t, guard.Close())
	require.NoError(t, WaitDone(sup.Done(), timeout))
	assert.Equal(t, 0, rec.Count(HasTag(rst.WorkerRestarted)))
	assert.True(t, rec.WaitTill(ThreadStopped(1), timeout))
}

func TestListenFailureIsACreateError(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()

	sup := rst.New[netaccept.Conn]("accept", netaccept.NewFactory(taken.Addr().String()))
	_, err = sup.Subscribe()
	require.Error(t, err)

	var createErr *rst.CreateError
	assert.ErrorAs(t, err, &createErr)
	assert.Equal(t, rst.Terminated, sup.Status().State)
}
