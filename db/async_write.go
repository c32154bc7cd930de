// async_write.go provides non-blocking history writes. Generation
// requests must never wait on or fail because of a history insert.
package db

import (
	"sync"
	"time"
)

// DefaultChannelCapacity is the default buffer size for the write queue.
const DefaultChannelCapacity = 100

// DefaultDrainTimeout bounds the shutdown drain for StopWithTimeout callers.
const DefaultDrainTimeout = 30 * time.Second

// WriteOperation is one queued write and the moment it was queued.
type WriteOperation struct {
	Data      interface{}
	Timestamp time.Time
}

// WriteHandler processes one queued write. Implementations own their
// error handling; a returned error is dropped by the worker.
type WriteHandler func(op WriteOperation) error

// AsyncWriter decouples history inserts from the request path with a
// buffered queue and a single worker goroutine.
//
// This molecule composes a channel, a state-guarding mutex, and a done
// broadcast. Stopping closes the queue, so the worker drains whatever
// is buffered before exiting: queued rows survive an orderly shutdown.
type AsyncWriter struct {
	mu      sync.Mutex
	queue   chan WriteOperation
	handler WriteHandler
	started bool
	stopped bool
	done    chan struct{} // closed when the worker has drained and exited
}

// AsyncWriterConfig holds tuning knobs for the async writer.
type AsyncWriterConfig struct {
	// ChannelCapacity is the number of writes that may wait in the queue.
	ChannelCapacity int
	// DrainTimeout is the shutdown wait used by callers of StopWithTimeout.
	DrainTimeout time.Duration
}

// DefaultAsyncWriterConfig returns the production defaults.
func DefaultAsyncWriterConfig() AsyncWriterConfig {
	return AsyncWriterConfig{
		ChannelCapacity: DefaultChannelCapacity,
		DrainTimeout:    DefaultDrainTimeout,
	}
}

// NewAsyncWriter builds a writer with default configuration. The handler
// runs on the worker goroutine for every queued operation.
func NewAsyncWriter(handler WriteHandler) *AsyncWriter {
	return NewAsyncWriterWithConfig(handler, DefaultAsyncWriterConfig())
}

// NewAsyncWriterWithConfig builds a writer with a custom configuration.
func NewAsyncWriterWithConfig(handler WriteHandler, config AsyncWriterConfig) *AsyncWriter {
	capacity := config.ChannelCapacity
	if capacity < 1 {
		capacity = DefaultChannelCapacity
	}
	return &AsyncWriter{
		queue:   make(chan WriteOperation, capacity),
		handler: handler,
		done:    make(chan struct{}),
	}
}

// Start launches the worker goroutine. Writes queued earlier are picked
// up once the worker runs. Start after Stop is a no-op.
func (w *AsyncWriter) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started || w.stopped {
		return
	}
	w.started = true
	go w.run()
}

func (w *AsyncWriter) run() {
	defer close(w.done)
	// The range ends when Stop closes the queue, after the buffer is
	// drained.
	for op := range w.queue {
		_ = w.handler(op)
	}
}

// Write queues one operation without blocking. It returns false when the
// queue is full or the writer has been stopped; callers then fall back
// to a synchronous insert.
func (w *AsyncWriter) Write(data interface{}) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return false
	}
	select {
	case w.queue <- WriteOperation{Data: data, Timestamp: time.Now()}:
		return true
	default:
		return false
	}
}

// Pending reports the number of operations waiting in the queue.
func (w *AsyncWriter) Pending() int {
	return len(w.queue)
}

// Stop seals the queue and blocks until the worker has drained it.
func (w *AsyncWriter) Stop() {
	w.seal()
	<-w.done
}

// StopWithTimeout seals the queue and waits up to timeout for the drain.
// It returns false when the drain is still running at the deadline; the
// worker keeps going in the background regardless.
func (w *AsyncWriter) StopWithTimeout(timeout time.Duration) bool {
	w.seal()
	select {
	case <-w.done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// seal closes the queue exactly once and rejects writes from then on.
func (w *AsyncWriter) seal() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.stopped = true
	close(w.queue)
	if !w.started {
		// No worker exists to drain and close done.
		close(w.done)
	}
}

// IsStarted reports whether Start has been called.
func (w *AsyncWriter) IsStarted() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.started
}
