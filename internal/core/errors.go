package core

import "errors"

// Error taxonomy surfaced to callers. Adapters map these onto transport
// status codes; the core itself never retries.
//
//	ErrNotFound     — pallet/location/invoice absent or in a terminal state
//	ErrInvalidInput — malformed quantities, dates, or rates; do not retry
//	ErrConflict     — lost optimistic-concurrency race or occupied target
//	                  location; safe to retry after a fresh read
//	ErrInternal     — transaction begin/commit failure; nothing was applied
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("conflict")
	ErrInternal     = errors.New("internal error")
)
