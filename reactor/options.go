package reactor

import "go.uber.org/zap"

// Config holds the server's tunable parameters.
type Config struct {
	IOThreads   int  // total reactor threads including the leader; must be >= 1
	WorkerCount int  // workers for Process; 0 = run inline on the follower
	TCPNoDelay  bool // apply TCP_NODELAY to each accepted socket
	Affinity    bool // reserved hint for pinning threads to cores
	WorkerQueue int  // worker task queue depth; 0 = default

	log *zap.Logger
}

// Option configures a Server at construction using the functional-options
// style (see DESIGN.md).
type Option func(*Config)

// WithIOThreads sets the total reactor thread count, including the leader.
func WithIOThreads(n int) Option { return func(c *Config) { c.IOThreads = n } }

// WithWorkers sets the worker-pool size; 0 runs Process inline on the follower.
func WithWorkers(n int) Option { return func(c *Config) { c.WorkerCount = n } }

// WithTCPNoDelay applies TCP_NODELAY to every accepted socket.
func WithTCPNoDelay(b bool) Option { return func(c *Config) { c.TCPNoDelay = b } }

// WithAffinity is a reserved hint for pinning IO Threads to cores.
func WithAffinity(b bool) Option { return func(c *Config) { c.Affinity = b } }

// WithWorkerQueue sets the worker pool's task queue depth.
func WithWorkerQueue(n int) Option { return func(c *Config) { c.WorkerQueue = n } }

// WithLogger injects a structured logger; the default is a no-op logger.
func WithLogger(l *zap.Logger) Option { return func(c *Config) { c.log = l } }
