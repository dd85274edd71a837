package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/artzaitsev/ai-assignment-checker/internal/model"
	"github.com/artzaitsev/ai-assignment-checker/internal/repository"
)

// WorkerLoop is the per-tick orchestrator for one stage. It has no notion
// of cadence or process lifetime; Runner drives it.
type WorkerLoop struct {
	Repo              repository.ClaimRepository
	Stage             model.Stage
	WorkerID          string
	Handler           Handler
	LeaseSeconds      int
	HeartbeatInterval time.Duration
	MaxAttempts       int
	ReclaimBatchLimit int
	Logger            *slog.Logger
}

// RunOnce executes one tick: reclaim, claim, process, finalize. didWork is
// true whenever a claim was obtained, including a tick that errors out
// before finalize — an idle tick (no claim available) is not an error, it
// reports didWork=false.
func (w *WorkerLoop) RunOnce(ctx context.Context) (didWork bool, err error) {
	log := w.logger()

	if _, err := w.Repo.ReclaimExpiredRetry(ctx, w.Stage, string(ErrorKindRetryableTransient), "lease expired", w.MaxAttempts, w.ReclaimBatchLimit); err != nil {
		return false, err
	}
	if _, err := w.Repo.ReclaimExpiredDeadLetter(ctx, w.Stage, string(ErrorKindRetryableTransient), "lease expired, attempts exhausted", w.MaxAttempts, w.ReclaimBatchLimit); err != nil {
		return false, err
	}

	claim, err := w.Repo.ClaimNext(ctx, w.Stage, w.WorkerID, w.LeaseSeconds)
	if err != nil {
		if errors.Is(err, repository.ErrNoClaimAvailable) {
			return false, nil
		}
		return false, err
	}

	log = log.With("public_id", claim.PublicID, "stage", w.Stage)
	log.Info("claimed submission")

	handlerCtx, cancelHandler := context.WithCancel(ctx)
	defer cancelHandler()

	var lost atomicBool
	heartbeatDone := make(chan struct{})
	go w.runHeartbeat(handlerCtx, claim.PublicID, &lost, cancelHandler, heartbeatDone)

	result, handlerErr := w.Handler(handlerCtx, claim)
	cancelHandler()
	<-heartbeatDone

	if lost.Load() && handlerErr == nil && result.Success {
		result = ProcessResult{Success: false, ErrorKind: ErrorKindRetryableResource, Detail: "lease lost during processing"}
	}

	if handlerErr != nil {
		kind := Classify(handlerErr)
		w.finalizeFailure(ctx, log, claim, kind, handlerErr.Error())
		return true, nil
	}

	if result.Success || result.ErrorKind == ErrorKindPermanentBusiness {
		if result.ArtifactRef != nil {
			if err := w.Repo.LinkArtifact(ctx, claim.PublicID, w.Stage, result.ArtifactRef.Bucket, result.ArtifactRef.ObjectKey, result.ArtifactRef.SchemaVersion); err != nil {
				// fatal_infrastructure: the tick errors out and the claim's
				// lease is left untouched; no finalize call, no state
				// change (spec §7). Nothing on this worker retries the
				// finalize; the lease expires and the stage's reclaim
				// takes over.
				return true, fmt.Errorf("link artifact: %w", err)
			}
		}
		if err := w.Repo.FinalizeSuccess(ctx, claim.PublicID, w.Stage, w.WorkerID); err != nil {
			if errors.Is(err, repository.ErrLeaseLost) {
				log.Warn("finalize_success_rejected: lease lost, not retrying from this worker")
				return true, nil
			}
			return true, err
		}
		return true, nil
	}

	w.finalizeFailure(ctx, log, claim, result.ErrorKind, result.Detail)
	return true, nil
}

func (w *WorkerLoop) finalizeFailure(ctx context.Context, log *slog.Logger, claim repository.Claim, kind ErrorKind, detail string) {
	if !kind.IsRetryable() && kind != ErrorKindPermanentBusiness {
		if termErr := w.Repo.FinalizeFailureTerminal(ctx, claim.PublicID, w.Stage, w.WorkerID, string(kind), detail); termErr != nil {
			if errors.Is(termErr, repository.ErrLeaseLost) {
				log.Warn("finalize_failure_terminal_rejected: lease lost, abandoning")
				return
			}
			log.Error("finalize_failure_terminal failed", "error", termErr)
		}
		return
	}

	err := w.Repo.FinalizeFailureRetry(ctx, claim.PublicID, w.Stage, w.WorkerID, string(kind), detail, w.MaxAttempts)
	switch {
	case err == nil:
		return
	case errors.Is(err, repository.ErrAttemptsExhausted):
		if termErr := w.Repo.FinalizeFailureTerminal(ctx, claim.PublicID, w.Stage, w.WorkerID, string(kind), detail); termErr != nil {
			if errors.Is(termErr, repository.ErrLeaseLost) {
				log.Warn("finalize_failure_terminal_rejected: lease lost, abandoning")
				return
			}
			log.Error("finalize_failure_terminal failed", "error", termErr)
		}
	case errors.Is(err, repository.ErrLeaseLost):
		log.Warn("finalize_failure_retry_rejected: lease lost, abandoning")
	default:
		log.Error("finalize_failure_retry failed", "error", err)
	}
}

// runHeartbeat extends the lease on a ticker until ctx is cancelled or a
// heartbeat_claim call returns ErrLeaseLost, in which case it sets lost and
// cancels the handler context — cooperative cancellation on first failed
// heartbeat.
func (w *WorkerLoop) runHeartbeat(ctx context.Context, publicID string, lost *atomicBool, cancel context.CancelFunc, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(w.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.Repo.HeartbeatClaim(ctx, publicID, w.Stage, w.WorkerID, w.LeaseSeconds); err != nil {
				if errors.Is(err, repository.ErrLeaseLost) {
					lost.Store(true)
					cancel()
					return
				}
				w.logger().Warn("heartbeat failed", "public_id", publicID, "error", err)
			}
		}
	}
}

func (w *WorkerLoop) logger() *slog.Logger {
	if w.Logger != nil {
		return w.Logger
	}
	return slog.Default()
}

// atomicBool is a tiny cancellation flag shared between the handler
// goroutine and the heartbeat goroutine.
type atomicBool struct {
	mu sync.Mutex
	v  bool
}

func (a *atomicBool) Store(v bool) {
	a.mu.Lock()
	a.v = v
	a.mu.Unlock()
}

func (a *atomicBool) Load() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.v
}

// Classify maps an unexpected handler error (as opposed to an explicit
// ProcessResult.ErrorKind) to a taxonomy value.
func Classify(err error) ErrorKind {
	switch {
	case errors.Is(err, context.Canceled):
		return ErrorKindCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorKindCancelled
	case errors.Is(err, repository.ErrLeaseLost):
		return ErrorKindRetryableResource
	default:
		return ErrorKindRetryableTransient
	}
}
