// Package shutdown coordinates graceful teardown of the server.
//
// The package composes the core.ShutdownFunc atom into three molecules:
// an in-flight counter that drains request work, an ordered cleanup
// sequence, and a signal watcher that turns the first SIGINT or SIGTERM
// into a context cancellation and any repeat into a forced exit. The
// Manager organism owns all three, and closers.go supplies canned
// cleanup steps for this server's components.
package shutdown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"sdserve/core"
	"sdserve/logging"

	"go.uber.org/zap"
)

// DefaultTimeout bounds the whole shutdown sequence when WithTimeout is
// not given.
const DefaultTimeout = 60 * time.Second

// Manager owns the server's shutdown lifecycle: the context components
// watch, the in-flight drain, and the ordered cleanup sequence.
//
// Usage:
//
//	manager := NewManager(logger, WithTimeout(60*time.Second))
//
//	// Lower order runs first. The generator closes before the HTTP
//	// server drains so queued requests are answered with a
//	// shutting-down error instead of hanging through the drain.
//	manager.Register("generator", 10, Generator(logger, gen))
//	manager.Register("http-server", 15, HTTPServer(logger, server))
//	manager.Register("database", 30, Database(logger, database))
//
//	manager.Start()
//	<-manager.Context().Done()
//	manager.Shutdown()
type Manager struct {
	logger  *logging.Logger
	timeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	inflight *InFlight
	seq      *Sequence

	mu       sync.Mutex
	watching bool
	done     bool
	sigCh    chan os.Signal
	force    func() // runs on repeat signals, replaceable for tests
}

// Option configures a Manager.
type Option func(*Manager)

// WithTimeout bounds the drain plus cleanup phases. Default is
// DefaultTimeout.
func WithTimeout(timeout time.Duration) Option {
	return func(m *Manager) {
		m.timeout = timeout
	}
}

// WithForceExit replaces the process exit performed on a repeat signal.
// Tests use it to observe the force path without killing the run.
func WithForceExit(force func()) Option {
	return func(m *Manager) {
		m.force = force
	}
}

// NewManager builds a Manager with an open context and no cleanup steps.
func NewManager(logger *logging.Logger, opts ...Option) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		logger:   logger,
		timeout:  DefaultTimeout,
		ctx:      ctx,
		cancel:   cancel,
		inflight: NewInFlight(),
		seq:      NewSequence(),
		sigCh:    make(chan os.Signal, 1),
		force:    func() { os.Exit(1) },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Context returns the context cancelled when shutdown begins. The
// history retention sweeper and the GPU sampler both run against it.
func (m *Manager) Context() context.Context {
	return m.ctx
}

// Register adds a cleanup step. Lower order values run earlier.
//
// The order bands this server uses:
//   - 10-19: stop taking work (close the generator, drain the HTTP server)
//   - 20-29: stop background workers (GPU sampler, history write queue)
//   - 30-39: release resources (close the database)
//   - 40+: final bookkeeping
func (m *Manager) Register(name string, order int, fn core.ShutdownFunc) {
	m.seq.Add(name, order, fn)
	m.logger.Debug("Registered shutdown step",
		zap.String("name", name),
		zap.Int("order", order),
	)
}

// Start subscribes to SIGINT and SIGTERM. The first signal cancels
// Context; any repeat forces an immediate exit. Calling Start again is
// a no-op.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.watching {
		return
	}
	m.watching = true

	signal.Notify(m.sigCh, os.Interrupt, syscall.SIGTERM)
	go watchSignals(m.sigCh, m.logger, m.cancel, func() { m.force() })

	m.logger.Info("Shutdown manager started, listening for signals")
}

// Shutdown drains in-flight work and runs the cleanup sequence:
//  1. cancel Context and stop admitting new work
//  2. wait for admitted work, bounded by the configured timeout
//  3. run cleanup steps in order with whatever time remains, never less
//     than one second, so a blown drain window cannot starve cleanup
//
// The first call does the work and reports aggregate failures; later
// calls return nil.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	if m.done {
		m.mu.Unlock()
		return nil
	}
	m.done = true
	m.mu.Unlock()

	began := time.Now()
	m.logger.Info("Initiating graceful shutdown",
		zap.Duration("timeout", m.timeout),
		zap.Int("steps", m.seq.Len()),
	)

	m.cancel()
	m.inflight.BeginDrain()

	if n := m.inflight.Count(); n > 0 {
		m.logger.Info("Waiting for in-flight work", zap.Int64("in_flight", n))
	}
	if err := m.inflight.AwaitIdle(m.timeout); err != nil {
		m.logger.Warn("In-flight work did not finish in time",
			zap.Duration("waited", time.Since(began)),
			zap.Int64("abandoned", m.inflight.Count()),
		)
	}

	window := m.timeout - time.Since(began)
	if window < time.Second {
		window = time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), window)
	defer cancel()

	m.logger.Info("Running cleanup steps", zap.Strings("steps", m.seq.Names()))
	errs := m.seq.Run(ctx)
	for _, err := range errs {
		m.logger.Error("Cleanup step failed", zap.Error(err))
	}

	m.mu.Lock()
	if m.watching {
		signal.Stop(m.sigCh)
		m.watching = false
	}
	close(m.sigCh)
	m.mu.Unlock()

	took := time.Since(began)
	if len(errs) > 0 {
		m.logger.Error("Shutdown completed with errors",
			zap.Duration("duration", took),
			zap.Int("errors", len(errs)),
		)
		return fmt.Errorf("shutdown finished with %d failed steps", len(errs))
	}
	m.logger.Info("Graceful shutdown complete", zap.Duration("duration", took))
	return nil
}

// Wait blocks until the managed context is cancelled.
func (m *Manager) Wait() {
	<-m.ctx.Done()
}

// WrapOperation runs fn counted as in-flight work so Shutdown waits for
// it. Once draining has begun the work is rejected with ErrShuttingDown.
// The name only feeds logging.
func (m *Manager) WrapOperation(ctx context.Context, name string, fn func(context.Context) error) error {
	if !m.inflight.Admit() {
		m.logger.Debug("Operation rejected, system shutting down",
			zap.String("operation", name),
		)
		return ErrShuttingDown
	}
	defer m.inflight.Release()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-m.ctx.Done():
		return context.Canceled
	default:
	}

	return fn(ctx)
}

// IsShuttingDown reports whether Shutdown has begun.
func (m *Manager) IsShuttingDown() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.done || m.inflight.Draining()
}
