package reactor

import "errors"

var (
	// ErrInvalidConfig is returned by Init when io_thread_count < 1 or
	// worker_thread_count < 0.
	ErrInvalidConfig = errors.New("reactor: invalid config")

	// ErrAlreadyStarted is returned by Start on a server that already
	// started, and by AddListen called after Start.
	ErrAlreadyStarted = errors.New("reactor: server already started")

	// ErrNotStarted is returned by Stop on a server that never started.
	ErrNotStarted = errors.New("reactor: server not started")

	// ErrConnClosed is returned by SendMessage when the target connection
	// is nil or already closed.
	ErrConnClosed = errors.New("reactor: connection closed")

	// ErrListenFailed wraps a bind/listen failure from AddListen.
	ErrListenFailed = errors.New("reactor: listen failed")
)
