// Package repository is the sole gateway to the store for scheduling
// operations. Every exported method is a single conditional SQL statement
// whose WHERE clause is the entire safety argument; callers never
// pre-check state themselves.
package repository

import (
	"context"
	"time"

	"github.com/artzaitsev/ai-assignment-checker/internal/model"
)

// Claim is the row a worker obtains from ClaimNext: enough state to run a
// stage handler and to heartbeat/finalize afterward.
type Claim struct {
	PublicID       string
	Attempt        int
	LeaseExpiresAt time.Time
}

// ClaimRepository is implemented by the postgres package and by any fake
// used in scheduler unit tests.
type ClaimRepository interface {
	// ClaimNext atomically claims the oldest submission in a stage's
	// pre-state using SELECT ... FOR UPDATE SKIP LOCKED, then an UPDATE
	// that moves it to the in-progress state under the given lease.
	// Returns ErrNoClaimAvailable if nothing was claimable.
	ClaimNext(ctx context.Context, stage model.Stage, workerID string, leaseSeconds int) (Claim, error)

	// HeartbeatClaim extends the lease. A false return (ErrLeaseLost) means
	// the claim was reclaimed, finalized, or otherwise transitioned away;
	// the caller must treat it as cancellation.
	HeartbeatClaim(ctx context.Context, publicID string, stage model.Stage, workerID string, leaseSeconds int) error

	// FinalizeSuccess moves the submission to the stage's success state and
	// clears lease/error fields, gated by continued ownership.
	FinalizeSuccess(ctx context.Context, publicID string, stage model.Stage, workerID string) error

	// FinalizeFailureRetry increments the stage's attempt counter and moves
	// to the stage's failure state, gated by ownership and by
	// attempt+1 < maxAttempts. Returns ErrAttemptsExhausted (still owned,
	// but the caller must call FinalizeFailureTerminal instead) or
	// ErrLeaseLost.
	FinalizeFailureRetry(ctx context.Context, publicID string, stage model.Stage, workerID string, errorCode, errorMessage string, maxAttempts int) error

	// FinalizeFailureTerminal moves the submission to dead_letter. Does not
	// increment the attempt counter: the attempt that exhausted the budget
	// is already accounted for by the caller's prior FinalizeFailureRetry
	// attempt.
	FinalizeFailureTerminal(ctx context.Context, publicID string, stage model.Stage, workerID string, errorCode, errorMessage string) error

	// ReclaimExpiredRetry returns expired in-progress submissions (for the
	// stage) with attempts remaining to their failure state, incrementing
	// the attempt counter. Bounded by limit.
	ReclaimExpiredRetry(ctx context.Context, stage model.Stage, errorCode, errorMessage string, maxAttempts, limit int) ([]string, error)

	// ReclaimExpiredDeadLetter moves expired in-progress submissions (for
	// the stage) with no attempts remaining to dead_letter. Bounded by
	// limit. Together with ReclaimExpiredRetry this partitions the
	// expired-claim set.
	ReclaimExpiredDeadLetter(ctx context.Context, stage model.Stage, errorCode, errorMessage string, maxAttempts, limit int) ([]string, error)

	// TransitionState is the unconditional, stage-agnostic status edge used
	// by ingress paths (e.g. telegram_update_received -> uploaded).
	TransitionState(ctx context.Context, publicID string, from, to model.Status) error

	// LinkArtifact appends a new artifact row. Called by the worker loop
	// between handler success and finalize.
	LinkArtifact(ctx context.Context, submissionPublicID string, stage model.Stage, bucket, objectKey string, schemaVersion int) error

	// LatestArtifact returns the newest artifact for a submission/stage
	// pair, ordered by (created_at, id) descending.
	LatestArtifact(ctx context.Context, submissionPublicID string, stage model.Stage) (model.Artifact, error)
}
