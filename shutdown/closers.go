package shutdown

import (
	"context"
	"time"

	"sdserve/core"
	"sdserve/logging"

	"go.uber.org/zap"
)

// HTTPDrainer is the part of the HTTP server the drain closer needs.
type HTTPDrainer interface {
	Shutdown(ctx context.Context) error
}

// GenerationBackend is the part of the generator the closer needs.
type GenerationBackend interface {
	Close() error
	InFlight() int64
}

// WriteQueue is the part of the async history writer the drain closer needs.
type WriteQueue interface {
	StopWithTimeout(timeout time.Duration) bool
	Pending() int
}

// Generator returns a shutdown function that closes the generation backend.
// Queued requests are woken with a shutting-down error; a generation already
// on the device finishes and frees the backend when it releases. Run this
// before the HTTP drain so the queue empties fast instead of holding
// connections open for the full drain window.
//
// Priority recommendation: 10 (first - stop taking work)
func Generator(logger *logging.Logger, gen GenerationBackend) core.ShutdownFunc {
	return func(ctx context.Context) error {
		if n := gen.InFlight(); n > 0 {
			logger.Info("Closing generator with requests in flight",
				zap.Int64("in_flight", n),
			)
		}
		return gen.Close()
	}
}

// HTTPServer returns a shutdown function that gracefully drains the HTTP
// server: the listener closes immediately, in-flight responses (including
// the generation the backend let finish) are written before it returns.
//
// Priority recommendation: 15 (after the generator closes)
func HTTPServer(logger *logging.Logger, server HTTPDrainer) core.ShutdownFunc {
	return func(ctx context.Context) error {
		logger.Info("Draining HTTP server")
		return server.Shutdown(ctx)
	}
}

// Stopper returns a shutdown function for background workers with a bare
// Stop method, such as the GPU sampler.
//
// Priority recommendation: 20-29 (after traffic stops)
func Stopper(logger *logging.Logger, name string, stop func()) core.ShutdownFunc {
	return func(ctx context.Context) error {
		logger.Debug("Stopping background worker", zap.String("worker", name))
		stop()
		return nil
	}
}

// HistoryWriter returns a shutdown function that drains the async history
// write queue. Rows still queued when the timeout expires are dropped and
// logged; history is advisory and must not hold up shutdown indefinitely.
//
// Priority recommendation: 25 (before the database closes)
func HistoryWriter(logger *logging.Logger, writer WriteQueue, drainTimeout time.Duration) core.ShutdownFunc {
	return func(ctx context.Context) error {
		if pending := writer.Pending(); pending > 0 {
			logger.Info("Draining history write queue",
				zap.Int("pending", pending),
			)
		}
		if !writer.StopWithTimeout(drainTimeout) {
			logger.Warn("History write queue did not drain in time",
				zap.Int("dropped", writer.Pending()),
				zap.Duration("timeout", drainTimeout),
			)
		}
		return nil
	}
}

// Database returns a shutdown function that closes the history database.
// Runs after the write queue drains so no writer is left mid-insert.
//
// Priority recommendation: 30
func Database(logger *logging.Logger, closer interface{ Close() error }) core.ShutdownFunc {
	return func(ctx context.Context) error {
		logger.Debug("Closing history database")
		return closer.Close()
	}
}
