package shutdown

import (
	"errors"
	"sync"
	"time"
)

// ErrShuttingDown is returned when new work arrives after draining began.
var ErrShuttingDown = errors.New("shutting down: new work rejected")

// ErrDrainTimeout is returned when in-flight work outlives the drain window.
var ErrDrainTimeout = errors.New("drain timeout: in-flight work did not finish")

// InFlight counts work currently executing so shutdown can drain it.
//
// This is a molecule pairing a guarded counter with an idle broadcast
// channel. Callers Admit before doing work and Release after; the manager
// flips the gate with BeginDrain and parks in AwaitIdle until the count
// touches zero or the window expires.
//
// Usage:
//
//	inflight := NewInFlight()
//
//	// In a request handler:
//	if !inflight.Admit() {
//	    return // draining, reject the request
//	}
//	defer inflight.Release()
//
//	// During shutdown:
//	inflight.BeginDrain()
//	if err := inflight.AwaitIdle(30 * time.Second); err != nil {
//	    log.Println("gave up waiting for in-flight work")
//	}
type InFlight struct {
	mu       sync.Mutex
	count    int64
	draining bool
	idle     chan struct{} // allocated on demand, closed when count hits zero
}

// NewInFlight returns a counter with the admission gate open.
func NewInFlight() *InFlight {
	return &InFlight{}
}

// Admit registers one unit of work. It returns false once draining has
// begun; the caller must then skip both the work and the Release.
func (f *InFlight) Admit() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.draining {
		return false
	}
	f.count++
	return true
}

// Release retires one unit of admitted work. The release that brings the
// count to zero wakes every AwaitIdle caller.
func (f *InFlight) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count--
	if f.count == 0 && f.idle != nil {
		close(f.idle)
		f.idle = nil
	}
}

// BeginDrain closes the admission gate. Work already admitted keeps
// running; further Admit calls return false.
func (f *InFlight) BeginDrain() {
	f.mu.Lock()
	f.draining = true
	f.mu.Unlock()
}

// AwaitIdle blocks until the count reaches zero or the window expires,
// returning ErrDrainTimeout in the latter case. Call BeginDrain first;
// with the gate still open new admissions can hold the count above zero
// indefinitely.
func (f *InFlight) AwaitIdle(window time.Duration) error {
	f.mu.Lock()
	if f.count == 0 {
		f.mu.Unlock()
		return nil
	}
	if f.idle == nil {
		f.idle = make(chan struct{})
	}
	idle := f.idle
	f.mu.Unlock()

	timer := time.NewTimer(window)
	defer timer.Stop()
	select {
	case <-idle:
		return nil
	case <-timer.C:
		return ErrDrainTimeout
	}
}

// Count reports the units admitted but not yet released.
func (f *InFlight) Count() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count
}

// Draining reports whether BeginDrain has been called.
func (f *InFlight) Draining() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.draining
}
