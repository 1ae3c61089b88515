package reactor

import (
	"net"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// Status is the lifecycle state of a Connection.
type Status int32

const (
	StatusOpen Status = iota
	StatusClosed
)

// Connection is the per-client state the reactor tracks: address, socket,
// read/write buffers, readiness registrations, owning follower, lifecycle
// refcount.
//
// Mutation rules: registration arm/disarm and socket I/O
// happen only on the owning follower. The refcount is the one field
// mutated cross-thread (atomically) by workers holding an in-flight
// Message.
type Connection struct {
	fd   int
	addr net.Addr

	readBuf  *Buffer
	writeBuf *Buffer

	readArmed  bool
	writeArmed bool

	handler  Handler
	follower *ioThread

	status  atomic.Int32
	refcnt  atomic.Int32

	server *Server
}

func newConnection(fd int, addr net.Addr, h Handler, srv *Server) *Connection {
	c := &Connection{
		fd:       fd,
		addr:     addr,
		readBuf:  NewBuffer(4096),
		writeBuf: NewBuffer(4096),
		handler:  h,
		server:   srv,
	}
	c.refcnt.Store(1)
	return c
}

// Fd returns the connection's raw file descriptor.
func (c *Connection) Fd() int { return c.fd }

// Addr returns the peer's network address.
func (c *Connection) Addr() net.Addr { return c.addr }

// IsClosed reports whether the connection has transitioned to CLOSED.
func (c *Connection) IsClosed() bool { return Status(c.status.Load()) == StatusClosed }

// retain increments the refcount. Called when a Message is created.
func (c *Connection) retain() { c.refcnt.Add(1) }

// release decrements the refcount and returns the new value; 1 means only
// the registry's implicit reference remains. Called when a Message is
// destroyed.
func (c *Connection) release() int32 { return c.refcnt.Add(-1) }

func (c *Connection) refcount() int32 { return c.refcnt.Load() }

// close marks the connection closed and defers the terminal socket close
// until every in-flight Message has released it. It is idempotent and
// must run on the connection's owning follower.
func (c *Connection) close(l *loop) {
	if Status(c.status.Load()) != StatusClosed {
		c.status.Store(int32(StatusClosed))
		if c.handler != nil {
			c.handler.OnDisconnect(c)
		}
		if c.readArmed || c.writeArmed {
			l.remove(c.fd)
			c.readArmed, c.writeArmed = false, false
		}
	}
	if c.refcount() > 1 {
		// Some in-flight Message still references this connection;
		// terminal close is deferred to whichever path drops the
		// refcount to 1 (the message-mailbox consumer, or the inline
		// Process path in processReadBuffer).
		return
	}
	c.terminalClose()
}

// terminalClose removes the connection from the server registry and its
// owning follower's fd map, then closes its socket exactly once.
// Precondition: status==CLOSED and refcount==1.
func (c *Connection) terminalClose() {
	// Dropping the refcount from 1 to 0 marks the terminal close as done,
	// so a repeated close() or a second caller is a no-op.
	if !c.refcnt.CompareAndSwap(1, 0) {
		return
	}
	c.server.delConnection(c.fd)
	if c.follower != nil {
		delete(c.follower.connsByFD, c.fd)
	}
	unix.Close(c.fd)
}

func (c *Connection) armRead(l *loop) {
	if !c.readArmed {
		l.addRead(c.fd)
		c.readArmed = true
	} else {
		l.modRead(c.fd)
	}
	c.writeArmed = false
}

func (c *Connection) armReadWrite(l *loop) {
	l.modReadWrite(c.fd)
	c.readArmed, c.writeArmed = true, true
}
