package reactor

import "sync"

// mailbox is the multi-producer/single-consumer queue paired with the
// owning loop's cross-thread wakeup.
// Producers on any thread push and signal; the consumer, running on the
// loop that owns the mailbox, drains it fully on each wake.
type mailbox[T any] struct {
	owner *loop

	mu     sync.Mutex
	items  []T
	closed bool
}

func newMailbox[T any](owner *loop) *mailbox[T] {
	return &mailbox[T]{owner: owner}
}

// push enqueues item and signals the owning loop. Safe from any thread.
// Pushing to a closed mailbox is a silent no-op rather than a panic, so a
// worker finishing after the owning loop has stopped can't crash it.
func (m *mailbox[T]) push(item T) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.items = append(m.items, item)
	m.mu.Unlock()
	m.owner.signal()
}

// drain returns and clears all pending items. Called only by the owning
// loop's goroutine.
func (m *mailbox[T]) drain() []T {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.items) == 0 {
		return nil
	}
	items := m.items
	m.items = nil
	return items
}

// close marks the mailbox closed; subsequent pushes are dropped.
func (m *mailbox[T]) close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
}
