package models

import (
	"errors"
)

// Error taxonomy for the lineage engine. Callers match with errors.Is; the
// HTTP layer maps these onto status codes. Store I/O failures are wrapped
// with %w around these or surfaced as-is, never swallowed.
var (
	// ErrNotFound means a referenced document or candidate does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict means a state-machine precondition was violated: the
	// candidate is already terminal, a concurrent transition won, or the
	// old document is no longer live.
	ErrConflict = errors.New("conflict")

	// ErrSelfReference means a manual link named the same document on both
	// sides.
	ErrSelfReference = errors.New("self reference")

	// ErrUnprocessable means full text could not be obtained for a
	// requested diff. Expected and recoverable, not an internal error.
	ErrUnprocessable = errors.New("text unavailable")

	// ErrInvariantViolation means corruption was detected, e.g. a cycle in
	// the lineage chain. Fatal: surfaced loudly, never silently repaired.
	ErrInvariantViolation = errors.New("lineage invariant violated")
)
