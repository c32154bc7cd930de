package shutdown

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"sdserve/core"
)

// step is one registered cleanup action.
type step struct {
	name  string
	order int // lower runs earlier
	fn    core.ShutdownFunc
}

// Sequence holds cleanup steps and runs them exactly once, in order.
//
// This is a molecule that keeps core.ShutdownFunc values sorted by order
// at insert time, so the run path is a plain walk. Steps with equal order
// run in registration order.
//
// The order bands this server uses:
//   - 10-19: stop taking work (close the generator, drain the HTTP server)
//   - 20-29: stop background workers (GPU sampler, history write queue)
//   - 30-39: release resources (close the database)
//   - 40+: final bookkeeping
type Sequence struct {
	mu    sync.Mutex
	steps []step
	ran   bool
}

// NewSequence returns an empty cleanup sequence.
func NewSequence() *Sequence {
	return &Sequence{}
}

// Add inserts a step at its ordered position. Steps added after Run has
// been called are dropped.
func (s *Sequence) Add(name string, order int, fn core.ShutdownFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ran {
		return
	}
	i := sort.Search(len(s.steps), func(i int) bool { return s.steps[i].order > order })
	s.steps = append(s.steps, step{})
	copy(s.steps[i+1:], s.steps[i:])
	s.steps[i] = step{name: name, order: order, fn: fn}
}

// Run executes every step in order, collecting failures instead of
// stopping at the first one. Each error is wrapped with the step name.
// Only the first call runs anything; later calls return nil.
func (s *Sequence) Run(ctx context.Context) []error {
	s.mu.Lock()
	if s.ran {
		s.mu.Unlock()
		return nil
	}
	s.ran = true
	steps := s.steps
	s.mu.Unlock()

	var errs []error
	for _, st := range steps {
		if err := st.fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", st.name, err))
		}
	}
	return errs
}

// Names lists the step names in run order.
func (s *Sequence) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, len(s.steps))
	for i, st := range s.steps {
		names[i] = st.name
	}
	return names
}

// Len reports the number of registered steps.
func (s *Sequence) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.steps)
}

// Ran reports whether Run has been called.
func (s *Sequence) Ran() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ran
}
