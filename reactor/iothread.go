package reactor

import (
	"runtime"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

const tickInterval = 10 * time.Millisecond

// ioThread is one OS thread owning one event loop.
// Index 0 is the leader and is the only thread that runs listeners and
// calls accept; followers have index >= 1.
type ioThread struct {
	idx    int
	server *Server
	l      *loop

	connMailbox *mailbox[*Connection]
	msgMailbox  *mailbox[*Message]

	// listenersByFD is populated only on the leader.
	listenersByFD map[int]*listener
	// connsByFD holds the connections this thread currently owns (every
	// follower; also the leader itself when io_thread_count==1).
	connsByFD map[int]*Connection

	done chan struct{}
}

func newIOThread(idx int, srv *Server) (*ioThread, error) {
	l, err := newLoop()
	if err != nil {
		return nil, err
	}
	t := &ioThread{
		idx:           idx,
		server:        srv,
		l:             l,
		listenersByFD: make(map[int]*listener),
		connsByFD:     make(map[int]*Connection),
		done:          make(chan struct{}),
	}
	t.connMailbox = newMailbox[*Connection](l)
	t.msgMailbox = newMailbox[*Message](l)
	return t, nil
}

func (t *ioThread) isLeader() bool { return t.idx == 0 }

// run is the thread entry point. It pins the goroutine to its OS thread
// so the loop's state is only ever touched by that one thread, then
// drives epoll_wait with a 10ms tick until stop.
func (t *ioThread) run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(t.done)

	if t.isLeader() {
		for _, ln := range t.server.listeners() {
			ln.follower = t
			t.listenersByFD[ln.fd] = ln
			t.l.addRead(ln.fd)
		}
	}

	for {
		if !t.server.isStarted() {
			return
		}
		stop := false
		t.l.wait(int(tickInterval/time.Millisecond), func(fd int, mask uint32, woken bool) bool {
			if woken {
				t.drainMailboxes()
			} else {
				t.dispatch(fd, mask)
			}
			if !t.server.isStarted() {
				stop = true
				return false
			}
			return true
		})
		if stop {
			break
		}
	}

	if t.isLeader() {
		for _, ln := range t.server.listeners() {
			t.l.remove(ln.fd)
			ln.follower = nil
		}
	}
}

// dispatch routes one ready fd to the accept path (leader, listener fd), or
// to the read/write pipeline stage for a known connection.
func (t *ioThread) dispatch(fd int, mask uint32) {
	if t.isLeader() {
		if ln, ok := t.listenersByFD[fd]; ok {
			t.onNewConnection(ln)
			return
		}
	}
	if c, ok := t.connsByFD[fd]; ok {
		t.onConnectionIO(c, mask)
	}
}

// drainMailboxes runs the connection-mailbox and message-mailbox consumers
//.
func (t *ioThread) drainMailboxes() {
	for _, c := range t.connMailbox.drain() {
		c.follower = t
		t.connsByFD[c.fd] = c
		c.armRead(t.l)
	}
	for _, m := range t.msgMailbox.drain() {
		t.onMessageReturned(m)
	}
}

// onNewConnection is the leader accept path.
func (t *ioThread) onNewConnection(ln *listener) {
	nfd, sa, err := unix.Accept(ln.fd)
	if err != nil {
		if err != unix.EAGAIN {
			t.server.log.Warn("accept failed", zap.Error(err), zap.String("addr", ln.addr))
		}
		return
	}
	if nfd <= 0 {
		return
	}
	if err := unix.SetNonblock(nfd, true); err != nil {
		unix.Close(nfd)
		return
	}
	if t.server.config.TCPNoDelay {
		if err := unix.SetsockoptInt(nfd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); err != nil {
			unix.Close(nfd)
			return
		}
	}

	addr := sockaddrToAddr(sa)
	conn := newConnection(nfd, addr, ln.handler, t.server)
	t.server.addConnection(conn)

	if ln.handler != nil {
		ln.handler.OnConnect(conn)
	}

	ioCount := t.server.config.IOThreads
	if ioCount == 1 {
		// With a single IO thread there are no followers to place onto,
		// so the leader assigns the connection to itself rather than
		// computing a modulo against zero followers.
		conn.follower = t
		t.connsByFD[nfd] = conn
		conn.armRead(t.l)
		return
	}

	followerIdx := (nfd % (ioCount - 1)) + 1
	target := t.server.threads[followerIdx]
	target.connMailbox.push(conn)
}

// onConnectionIO is invoked when epoll reports readiness on a connection's
// fd, dispatching to the write-readiness fallback or the read stage
// according to the reported mask.
func (t *ioThread) onConnectionIO(c *Connection, mask uint32) {
	if mask&unix.EPOLLOUT != 0 && c.writeArmed && !c.writeBuf.IsEmpty() {
		onConnectionWrite(c, t.l)
	}
	if mask&unix.EPOLLIN != 0 {
		onConnectionRead(c, t.l, t.server.workers)
	}
}

// onMessageReturned is the message-mailbox consumer.
func (t *ioThread) onMessageReturned(m *Message) {
	c := m.conn
	if !c.IsClosed() {
		processMessage(c, t.l, m)
	}
	m.destroy(c.handler)
	// The write above may itself have closed the connection, deferring
	// the terminal close to this drop.
	if c.IsClosed() && c.refcount() == 1 {
		c.terminalClose()
	}
}

func (t *ioThread) stop() {
	t.connMailbox.close()
	t.msgMailbox.close()
}
