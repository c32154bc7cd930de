package core

import "context"

// ShutdownFunc is one step of graceful shutdown. The context carries
// the deadline for the whole sequence; implementations should return
// early when it expires and must be safe to call more than once.
type ShutdownFunc func(ctx context.Context) error
