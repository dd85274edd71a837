package repository

import "errors"

var (
	// ErrNoClaimAvailable is returned by ClaimNext when no submission is in
	// the stage's pre-state (or all candidates are locked by others).
	ErrNoClaimAvailable = errors.New("repository: no claim available")

	// ErrLeaseLost is returned by HeartbeatClaim, FinalizeSuccess, and
	// FinalizeFailureRetry/Terminal when the WHERE-clause ownership
	// precondition no longer holds: the claim was reclaimed, already
	// finalized, or belongs to another worker.
	ErrLeaseLost = errors.New("repository: lease lost")

	// ErrAttemptsExhausted is returned by FinalizeFailureRetry when
	// attempt+1 >= maxAttempts; the caller must call
	// FinalizeFailureTerminal instead.
	ErrAttemptsExhausted = errors.New("repository: attempts exhausted")

	// ErrNotFound is returned when a lookup (artifact, submission) finds no
	// row.
	ErrNotFound = errors.New("repository: not found")

	// ErrDuplicate is returned on a unique constraint violation, e.g. a
	// repeated (source_type, source_external_id) pair.
	ErrDuplicate = errors.New("repository: duplicate")
)
