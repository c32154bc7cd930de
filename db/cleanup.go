// cleanup.go implements history retention: old generation records are
// purged on a schedule so the table stays bounded without operator
// intervention.
package db

import (
	"context"
	"fmt"
	"time"
)

// CleanupResult reports what one retention sweep did.
type CleanupResult struct {
	// GenerationsDeleted is the number of purged records.
	GenerationsDeleted int64
	// Duration is the wall time of the sweep, VACUUM included.
	Duration time.Duration
}

// Cleanup purges generation records older than retentionDays and runs
// VACUUM to return the space to the filesystem.
func (d *Database) Cleanup(retentionDays int) (CleanupResult, error) {
	return d.CleanupWithContext(context.Background(), retentionDays)
}

// CleanupWithContext is Cleanup with cancellation. When the context
// expires after the delete but before VACUUM, the deletion stays
// committed and the context error is returned alongside the count.
func (d *Database) CleanupWithContext(ctx context.Context, retentionDays int) (CleanupResult, error) {
	var result CleanupResult
	if retentionDays < 0 {
		return result, fmt.Errorf("retention days must be non-negative, got %d", retentionDays)
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}

	db, err := d.conn()
	if err != nil {
		return result, err
	}

	start := time.Now()
	cutoff := fmt.Sprintf("-%d days", retentionDays)
	res, err := db.ExecContext(ctx,
		"DELETE FROM generations WHERE created_at < datetime('now', ?)", cutoff)
	if err != nil {
		return result, fmt.Errorf("failed to delete old generations: %w", err)
	}
	if result.GenerationsDeleted, err = res.RowsAffected(); err != nil {
		return result, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if err := ctx.Err(); err != nil {
		result.Duration = time.Since(start)
		return result, err
	}

	// VACUUM cannot run inside a transaction, so it is a bare statement.
	if _, err := db.ExecContext(ctx, "VACUUM"); err != nil {
		result.Duration = time.Since(start)
		return result, fmt.Errorf("purge committed but VACUUM failed: %w", err)
	}

	result.Duration = time.Since(start)
	return result, nil
}

// CleanupSchedulerConfig configures the retention sweeper.
type CleanupSchedulerConfig struct {
	// RetentionDays is the age past which records are purged.
	RetentionDays int
	// Interval is the time between sweeps.
	Interval time.Duration
	// OnCleanup, when set, observes every sweep for logging.
	OnCleanup func(result CleanupResult, err error)
}

// DefaultCleanupSchedulerConfig keeps a month of history, swept daily.
func DefaultCleanupSchedulerConfig() CleanupSchedulerConfig {
	return CleanupSchedulerConfig{
		RetentionDays: 30,
		Interval:      24 * time.Hour,
	}
}

// StartCleanupScheduler runs sweeps with the default callback-free
// configuration. See StartCleanupSchedulerWithConfig.
func (d *Database) StartCleanupScheduler(ctx context.Context, retentionDays int, interval time.Duration) {
	config := DefaultCleanupSchedulerConfig()
	config.RetentionDays = retentionDays
	config.Interval = interval
	d.StartCleanupSchedulerWithConfig(ctx, config)
}

// StartCleanupSchedulerWithConfig launches the background sweeper: one
// sweep immediately, another every Interval, until ctx is cancelled.
func (d *Database) StartCleanupSchedulerWithConfig(ctx context.Context, config CleanupSchedulerConfig) {
	if config.Interval <= 0 {
		config.Interval = 24 * time.Hour
	}
	go func() {
		d.sweep(ctx, config)

		ticker := time.NewTicker(config.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				d.sweep(ctx, config)
			}
		}
	}()
}

// sweep runs one retention pass and reports it to the callback.
func (d *Database) sweep(ctx context.Context, config CleanupSchedulerConfig) {
	result, err := d.CleanupWithContext(ctx, config.RetentionDays)
	if config.OnCleanup != nil {
		config.OnCleanup(result, err)
	}
}
