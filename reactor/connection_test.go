package reactor

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

type trackingHandler struct {
	BaseHandler
	disconnects int
}

func (h *trackingHandler) Decode(buf *Buffer) (any, DecodeStatus) { return nil, DecodeAgain }
func (h *trackingHandler) Encode(buf *Buffer, resp any)           {}
func (h *trackingHandler) Process(msg *Message)                   {}
func (h *trackingHandler) OnDisconnect(c *Connection)             { h.disconnects++ }

func newTestFD(t *testing.T) int {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	return int(r.Fd())
}

func newTestServer() *Server {
	return &Server{registry: make([]*Connection, 1024)}
}

func TestConnectionRefcountStartsAtOne(t *testing.T) {
	c := newConnection(newTestFD(t), nil, nil, newTestServer())
	require.EqualValues(t, 1, c.refcount())
}

func TestConnectionRetainRelease(t *testing.T) {
	c := newConnection(newTestFD(t), nil, nil, newTestServer())
	c.retain()
	require.EqualValues(t, 2, c.refcount())
	require.EqualValues(t, 1, c.release())
}

func TestConnectionCloseIsIdempotent(t *testing.T) {
	h := &trackingHandler{}
	srv := newTestServer()
	c := newConnection(newTestFD(t), nil, h, srv)
	srv.addConnection(c)

	l, err := newLoop()
	require.NoError(t, err)
	defer l.close()

	c.close(l)
	c.close(l)
	require.Equal(t, 1, h.disconnects)
	require.True(t, c.IsClosed())
}

func TestConnectionCloseDefersTerminalCloseWhileMessageLive(t *testing.T) {
	srv := newTestServer()
	c := newConnection(newTestFD(t), nil, nil, srv)
	srv.addConnection(c)

	m := newMessage(c) // refcount -> 2
	require.EqualValues(t, 2, c.refcount())

	l, err := newLoop()
	require.NoError(t, err)
	defer l.close()

	c.close(l)
	require.True(t, c.IsClosed())
	// registry slot must still be populated: terminalClose was deferred.
	require.NotNil(t, srv.registry[c.fd])

	m.destroy(nil) // drops refcount to 1, but destroy alone does not reclose
	require.EqualValues(t, 1, c.refcount())
}

func TestConnectionCloseRemovesFromFollowerConnsByFD(t *testing.T) {
	srv := newTestServer()
	c := newConnection(newTestFD(t), nil, nil, srv)
	srv.addConnection(c)

	l, err := newLoop()
	require.NoError(t, err)
	defer l.close()

	follower := &ioThread{l: l, connsByFD: map[int]*Connection{c.fd: c}}
	c.follower = follower

	c.close(l)
	require.True(t, c.IsClosed())
	require.Nil(t, srv.registry[c.fd])
	_, stillPresent := follower.connsByFD[c.fd]
	require.False(t, stillPresent)
}

func TestConnectionArmReadThenArmReadWrite(t *testing.T) {
	c := newConnection(newTestFD(t), nil, nil, newTestServer())
	l, err := newLoop()
	require.NoError(t, err)
	defer l.close()

	c.armRead(l)
	require.True(t, c.readArmed)
	require.False(t, c.writeArmed)

	c.armReadWrite(l)
	require.True(t, c.readArmed)
	require.True(t, c.writeArmed)
}
