// Package webapi provides the HTTP transport for the generation service.
// This file contains duration formatting atoms for response headers and
// the metrics snapshot.
package webapi

import (
	"fmt"
	"math"
	"time"
)

// FormatGenerationTime renders a generation duration for the
// X-Generation-Time header: seconds with two decimals and a trailing
// unit. This is a pure function with no side effects.
//
// Examples:
//   - FormatGenerationTime(3420 * time.Millisecond) returns "3.42s"
//   - FormatGenerationTime(500 * time.Millisecond) returns "0.50s"
//   - FormatGenerationTime(0) returns "0.00s"
func FormatGenerationTime(d time.Duration) string {
	return fmt.Sprintf("%.2fs", d.Seconds())
}

// FormatUptime converts a duration to a human-readable string for the
// metrics snapshot. This is a pure function with no side effects.
//
// Only the two largest non-empty units appear, so a snapshot stays
// scannable: "45s", "12m 5s", "1h 30m", "2d 5h". Negative durations
// keep a leading minus sign.
func FormatUptime(d time.Duration) string {
	if d < 0 {
		return "-" + FormatUptime(-d)
	}

	const day = 24 * time.Hour
	switch {
	case d >= day:
		return fmt.Sprintf("%dd %dh", d/day, (d%day)/time.Hour)
	case d >= time.Hour:
		return fmt.Sprintf("%dh %dm", d/time.Hour, (d%time.Hour)/time.Minute)
	case d >= time.Minute:
		return fmt.Sprintf("%dm %ds", d/time.Minute, (d%time.Minute)/time.Second)
	default:
		return fmt.Sprintf("%ds", d/time.Second)
	}
}

// FormatRetryAfter renders a block duration for the Retry-After header,
// which takes whole seconds. Durations are rounded up so clients never
// retry before the block expires.
func FormatRetryAfter(d time.Duration) string {
	if d <= 0 {
		return "0"
	}
	return fmt.Sprintf("%d", int64(math.Ceil(d.Seconds())))
}
