package reactor

import "sync"

// task packages a Message with the user Process callback for dispatch to a
// worker pool goroutine.
type task struct {
	conn    *Connection
	msg     *Message
	process func(*Message)
}

// workerPool runs user Process callbacks on a fixed set of goroutines, one
// per shard. On completion, it pushes the Message back onto the
// originating follower's message mailbox and signals it -- the worker
// never touches the connection's registrations or socket directly.
//
// Tasks are keyed by their connection's fd: submit always routes a task to
// shards[fd % len(shards)], so every task belonging to one connection is
// processed by the same goroutine, in submission order, regardless of how
// many shards the pool has. Two frames decoded off the same connection in
// one read event (processReadBuffer can submit several before the first
// completes) are therefore always processed and returned to the follower
// mailbox in the order they were read, even though frames from *different*
// connections run fully in parallel across shards.
//
// This is a small hand-rolled pool rather than an adapted generic library;
// see DESIGN.md for why github.com/panjf2000/ants was not wired here.
type workerPool struct {
	shards []chan task
	wg     sync.WaitGroup

	closeMu sync.RWMutex
	closed  bool
}

func newWorkerPool(n, queueSize int) *workerPool {
	if queueSize <= 0 {
		queueSize = 1024
	}
	perShard := queueSize / n
	if perShard < 1 {
		perShard = 1
	}
	wp := &workerPool{shards: make([]chan task, n)}
	wp.wg.Add(n)
	for i := 0; i < n; i++ {
		wp.shards[i] = make(chan task, perShard)
		go wp.run(wp.shards[i])
	}
	return wp
}

func (wp *workerPool) run(tasks <-chan task) {
	defer wp.wg.Done()
	for t := range tasks {
		t.process(t.msg)
		t.conn.follower.msgMailbox.push(t.msg)
	}
}

// shardFor picks the worker lane a connection's tasks always land on.
func (wp *workerPool) shardFor(fd int) int {
	return fd % len(wp.shards)
}

// submit enqueues a task onto its connection's shard. Submitting after
// Close is a silent no-op: the RWMutex read lock taken here cannot overlap
// Close's write lock, so no send ever races a channel close.
func (wp *workerPool) submit(t task) {
	wp.closeMu.RLock()
	defer wp.closeMu.RUnlock()
	if wp.closed {
		return
	}
	wp.shards[wp.shardFor(t.conn.fd)] <- t
}

// Close quiesces the pool: no further tasks are accepted, and Close blocks
// until every already-submitted task has run to completion and pushed its
// result. Server.Stop calls this before breaking follower loops so no
// worker can race a follower's shutdown.
func (wp *workerPool) Close() {
	wp.closeMu.Lock()
	wp.closed = true
	for _, s := range wp.shards {
		close(s)
	}
	wp.closeMu.Unlock()
	wp.wg.Wait()
}
