// Package interfaces defines service contracts for Pulse
package interfaces

import "errors"

// Sentinel errors shared by every provider client. Callers test with
// errors.Is; the orchestrator converts both to silent absence, so a
// failed symbol never aborts a batch.
var (
	// ErrNotFound covers unmapped symbols, provider 404s, empty payloads,
	// non-numeric price fields, and placeholder zero prices.
	ErrNotFound = errors.New("no data for symbol")

	// ErrRateLimited is returned on HTTP 429. Treated like ErrNotFound
	// for the current cycle; the next cache-expiry fetch tries again.
	ErrRateLimited = errors.New("provider rate limited")
)
