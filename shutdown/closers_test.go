package shutdown

import (
	"context"
	"errors"
	"testing"
	"time"

	"sdserve/logging"
)

type fakeBackend struct {
	inFlight int64
	closed   bool
	closeErr error
}

func (f *fakeBackend) Close() error    { f.closed = true; return f.closeErr }
func (f *fakeBackend) InFlight() int64 { return f.inFlight }

type fakeDrainer struct {
	called bool
	err    error
}

func (f *fakeDrainer) Shutdown(ctx context.Context) error {
	f.called = true
	return f.err
}

type fakeWriteQueue struct {
	pending  int
	drained  bool
	gotLimit time.Duration
}

func (f *fakeWriteQueue) StopWithTimeout(timeout time.Duration) bool {
	f.gotLimit = timeout
	return f.drained
}

func (f *fakeWriteQueue) Pending() int { return f.pending }

func TestGenerator_ClosesBackend(t *testing.T) {
	backend := &fakeBackend{inFlight: 1}
	fn := Generator(logging.NewNopLogger(), backend)

	if err := fn(context.Background()); err != nil {
		t.Fatalf("closer returned error: %v", err)
	}
	if !backend.closed {
		t.Error("backend was not closed")
	}
}

func TestGenerator_PropagatesCloseError(t *testing.T) {
	wantErr := errors.New("device busy")
	backend := &fakeBackend{closeErr: wantErr}
	fn := Generator(logging.NewNopLogger(), backend)

	if err := fn(context.Background()); !errors.Is(err, wantErr) {
		t.Errorf("closer error = %v, want %v", err, wantErr)
	}
}

func TestHTTPServer_Drains(t *testing.T) {
	drainer := &fakeDrainer{}
	fn := HTTPServer(logging.NewNopLogger(), drainer)

	if err := fn(context.Background()); err != nil {
		t.Fatalf("closer returned error: %v", err)
	}
	if !drainer.called {
		t.Error("Shutdown was not called")
	}
}

func TestHTTPServer_PropagatesDrainError(t *testing.T) {
	wantErr := errors.New("drain timeout")
	drainer := &fakeDrainer{err: wantErr}
	fn := HTTPServer(logging.NewNopLogger(), drainer)

	if err := fn(context.Background()); !errors.Is(err, wantErr) {
		t.Errorf("closer error = %v, want %v", err, wantErr)
	}
}

func TestStopper_CallsStop(t *testing.T) {
	stopped := false
	fn := Stopper(logging.NewNopLogger(), "gpu-sampler", func() { stopped = true })

	if err := fn(context.Background()); err != nil {
		t.Fatalf("closer returned error: %v", err)
	}
	if !stopped {
		t.Error("stop function was not called")
	}
}

func TestHistoryWriter_Drains(t *testing.T) {
	queue := &fakeWriteQueue{pending: 3, drained: true}
	fn := HistoryWriter(logging.NewNopLogger(), queue, 2*time.Second)

	if err := fn(context.Background()); err != nil {
		t.Fatalf("closer returned error: %v", err)
	}
	if queue.gotLimit != 2*time.Second {
		t.Errorf("drain timeout = %v, want 2s", queue.gotLimit)
	}
}

func TestHistoryWriter_TimeoutDoesNotFailShutdown(t *testing.T) {
	queue := &fakeWriteQueue{pending: 10, drained: false}
	fn := HistoryWriter(logging.NewNopLogger(), queue, time.Millisecond)

	// An undrained queue is logged and dropped, never escalated.
	if err := fn(context.Background()); err != nil {
		t.Errorf("closer returned error: %v", err)
	}
}

func TestDatabase_ClosesAndPropagates(t *testing.T) {
	backend := &fakeBackend{}
	fn := Database(logging.NewNopLogger(), backend)

	if err := fn(context.Background()); err != nil {
		t.Fatalf("closer returned error: %v", err)
	}
	if !backend.closed {
		t.Error("database was not closed")
	}

	wantErr := errors.New("wal checkpoint failed")
	fn = Database(logging.NewNopLogger(), &fakeBackend{closeErr: wantErr})
	if err := fn(context.Background()); !errors.Is(err, wantErr) {
		t.Errorf("closer error = %v, want %v", err, wantErr)
	}
}
