package reactor

import (
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestDrainMailboxesAssignsFollowerAndArmsRead(t *testing.T) {
	l, err := newLoop()
	require.NoError(t, err)
	defer l.close()

	srv := newTestServer()
	ft := &ioThread{idx: 1, server: srv, l: l, connsByFD: make(map[int]*Connection)}
	ft.connMailbox = newMailbox[*Connection](l)
	ft.msgMailbox = newMailbox[*Message](l)

	c := newConnection(newTestFD(t), nil, nil, srv)
	ft.connMailbox.push(c)

	ft.drainMailboxes()

	require.Same(t, ft, c.follower)
	require.Same(t, c, ft.connsByFD[c.fd])
	require.True(t, c.readArmed)
}

func TestOnMessageReturnedOpenConnectionProcessesResponseAndDestroysMessage(t *testing.T) {
	l, err := newLoop()
	require.NoError(t, err)
	defer l.close()

	srv := newTestServer()
	c, peer := socketpairConn(t, upperEchoHandler{}, srv)
	srv.addConnection(c)
	ft := &ioThread{server: srv, l: l}
	c.follower = ft

	msg := newMessage(c)
	msg.SetResponse("REPLY")

	ft.onMessageReturned(msg)

	out := make([]byte, 64)
	n, err := unix.Read(peer, out)
	require.NoError(t, err)
	require.Equal(t, "REPLY\n", string(out[:n]))
	require.EqualValues(t, 1, c.refcount())
}

func TestOnMessageReturnedClosedConnectionTerminalClosesAtRefcountOne(t *testing.T) {
	l, err := newLoop()
	require.NoError(t, err)
	defer l.close()

	srv := newTestServer()
	c := newConnection(newTestFD(t), nil, nil, srv)
	srv.addConnection(c)
	ft := &ioThread{server: srv, l: l, connsByFD: map[int]*Connection{c.fd: c}}
	c.follower = ft

	msg := newMessage(c) // refcount 2
	c.close(l)           // CLOSED, but refcount 2 defers terminal close
	require.NotNil(t, srv.registry[c.fd])

	ft.onMessageReturned(msg) // drops to 1, must terminal-close
	require.Nil(t, srv.registry[c.fd])
	_, stillPresent := ft.connsByFD[c.fd]
	require.False(t, stillPresent)
}

func getBoundPort(t *testing.T, fd int) int {
	t.Helper()
	sa, err := unix.Getsockname(fd)
	require.NoError(t, err)
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return a.Port
	case *unix.SockaddrInet6:
		return a.Port
	default:
		t.Fatalf("unexpected sockaddr type %T", sa)
		return 0
	}
}

func TestOnNewConnectionSingleIOThreadAssignsToLeaderItself(t *testing.T) {
	srv, err := Init(WithIOThreads(1))
	require.NoError(t, err)
	defer srv.Destroy()

	ln, err := newListener("127.0.0.1:0", upperEchoHandler{})
	require.NoError(t, err)
	t.Cleanup(ln.close)
	port := getBoundPort(t, ln.fd)

	leader := srv.threads[0]
	leader.listenersByFD[ln.fd] = ln

	conn, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool {
		leader.onNewConnection(ln)
		return len(leader.connsByFD) == 1
	}, time.Second, time.Millisecond)

	for _, c := range leader.connsByFD {
		require.Same(t, leader, c.follower)
	}
}

func TestOnNewConnectionMultiIOThreadHandsOffToComputedFollower(t *testing.T) {
	srv, err := Init(WithIOThreads(3))
	require.NoError(t, err)
	defer srv.Destroy()

	ln, err := newListener("127.0.0.1:0", upperEchoHandler{})
	require.NoError(t, err)
	t.Cleanup(ln.close)
	port := getBoundPort(t, ln.fd)

	leader := srv.threads[0]
	leader.listenersByFD[ln.fd] = ln

	conn, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	var pushed *Connection
	var gotIdx int
	require.Eventually(t, func() bool {
		leader.onNewConnection(ln)
		gotIdx = 1
		drained := srv.threads[1].connMailbox.drain()
		if len(drained) == 0 {
			gotIdx = 2
			drained = srv.threads[2].connMailbox.drain()
		}
		if len(drained) == 1 {
			pushed = drained[0]
			return true
		}
		return false
	}, time.Second, time.Millisecond)

	require.NotNil(t, pushed)
	wantFollower := (pushed.fd % 2) + 1
	require.Equal(t, wantFollower, followerIdxOf(pushed, srv))
	require.Equal(t, wantFollower, gotIdx)
}

// followerIdxOf recomputes the placement formula independently of the
// connection's (not-yet-set) follower field, so the test asserts against
// the same rule onNewConnection applies rather than against its side effect.
func followerIdxOf(c *Connection, srv *Server) int {
	return (c.fd % (srv.config.IOThreads - 1)) + 1
}
