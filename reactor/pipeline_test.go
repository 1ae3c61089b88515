package reactor

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

type upperEchoHandler struct {
	BaseHandler
}

func (upperEchoHandler) Decode(buf *Buffer) (any, DecodeStatus) {
	data := buf.Readable()
	idx := bytes.IndexByte(data, '\n')
	if idx < 0 {
		return nil, DecodeAgain
	}
	line := string(data[:idx])
	buf.AdvanceRead(idx + 1)
	return line, DecodeOK
}

func (upperEchoHandler) Encode(buf *Buffer, resp any) {
	buf.Append([]byte(resp.(string) + "\n"))
}

func (upperEchoHandler) Process(msg *Message) {
	msg.SetResponse(strings.ToUpper(msg.Request().(string)))
}

func socketpairConn(t *testing.T, h Handler, srv *Server) (*Connection, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	require.NoError(t, unix.SetNonblock(fds[0], true))
	t.Cleanup(func() { unix.Close(fds[1]) })

	c := newConnection(fds[0], nil, h, srv)
	return c, fds[1]
}

func TestPipelineDecodeProcessEncodeWriteRoundTrip(t *testing.T) {
	l, err := newLoop()
	require.NoError(t, err)
	defer l.close()

	srv := newTestServer()
	c, peer := socketpairConn(t, upperEchoHandler{}, srv)
	srv.addConnection(c)

	_, err = unix.Write(peer, []byte("hello\n"))
	require.NoError(t, err)

	onConnectionRead(c, l, nil)

	out := make([]byte, 64)
	n, err := unix.Read(peer, out)
	require.NoError(t, err)
	require.Equal(t, "HELLO\n", string(out[:n]))
}

func TestPipelineDecodeAgainLeavesBufferIntact(t *testing.T) {
	l, err := newLoop()
	require.NoError(t, err)
	defer l.close()

	srv := newTestServer()
	c, peer := socketpairConn(t, upperEchoHandler{}, srv)
	srv.addConnection(c)

	_, err = unix.Write(peer, []byte("partial"))
	require.NoError(t, err)

	onConnectionRead(c, l, nil)
	require.Equal(t, "partial", string(c.readBuf.Readable()))
	require.False(t, c.IsClosed())
}

func TestPipelineMultipleFramesInOneReadAreAllProcessed(t *testing.T) {
	l, err := newLoop()
	require.NoError(t, err)
	defer l.close()

	srv := newTestServer()
	c, peer := socketpairConn(t, upperEchoHandler{}, srv)
	srv.addConnection(c)

	_, err = unix.Write(peer, []byte("one\ntwo\n"))
	require.NoError(t, err)

	onConnectionRead(c, l, nil)

	out := make([]byte, 64)
	n, err := unix.Read(peer, out)
	require.NoError(t, err)
	require.Equal(t, "ONE\nTWO\n", string(out[:n]))
}

type alwaysErrHandler struct{ BaseHandler }

func (alwaysErrHandler) Decode(buf *Buffer) (any, DecodeStatus) { return nil, DecodeErr }
func (alwaysErrHandler) Encode(buf *Buffer, resp any)           {}
func (alwaysErrHandler) Process(msg *Message)                   {}

func TestPipelineDecodeErrClosesConnection(t *testing.T) {
	l, err := newLoop()
	require.NoError(t, err)
	defer l.close()

	srv := newTestServer()
	c, peer := socketpairConn(t, alwaysErrHandler{}, srv)
	srv.addConnection(c)

	_, err = unix.Write(peer, []byte("x\n"))
	require.NoError(t, err)

	onConnectionRead(c, l, nil)
	require.True(t, c.IsClosed())
}

func TestPipelinePeerCloseTriggersConnectionClose(t *testing.T) {
	l, err := newLoop()
	require.NoError(t, err)
	defer l.close()

	srv := newTestServer()
	c, peer := socketpairConn(t, upperEchoHandler{}, srv)
	srv.addConnection(c)
	require.NoError(t, unix.Shutdown(peer, unix.SHUT_RDWR))

	onConnectionRead(c, l, nil)
	require.True(t, c.IsClosed())
}
