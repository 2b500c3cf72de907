// Package common provides shared utilities for Pulse
package common

import "time"

// Cache TTLs per data class. Freshness is always judged by the caller
// against these durations; the cache store itself only records timestamps.
const (
	TTLQuote         = 120 * time.Second // live quote snapshots
	TTLHistory       = 120 * time.Second // per-symbol close history
	TTLRatiosSummary = 60 * time.Second  // combined ratios payload
	TTLEarnings      = 6 * time.Hour     // earnings calendars
)

// IsFresh returns true if the given timestamp is within the TTL
func IsFresh(fetchedAt time.Time, ttl time.Duration) bool {
	if fetchedAt.IsZero() {
		return false
	}
	return time.Since(fetchedAt) < ttl
}

// SameCalendarDay reports whether two instants fall on the same local
// calendar day. The institutional YTD payload is cached per day rather
// than per duration: yesterday's aggregate is stale at midnight even if
// it is only minutes old.
func SameCalendarDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
