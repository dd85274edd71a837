package scheduler

import (
	"context"

	"github.com/artzaitsev/ai-assignment-checker/internal/repository"
)

// ArtifactRef is the durable output location a handler hands back to the
// loop for linking, named rather than linked directly by the handler so
// link_artifact always runs between process and finalize (spec step 5).
type ArtifactRef struct {
	Bucket        string
	ObjectKey     string
	SchemaVersion int
}

// ProcessResult is a stage handler's verdict on one claim.
type ProcessResult struct {
	Success     bool
	ErrorKind   ErrorKind
	Detail      string
	ArtifactRef *ArtifactRef
}

// Handler is a pure function from a claim to a ProcessResult. Handlers are
// stateless and MUST be idempotent with respect to the claim's public id:
// re-execution after a crash must reproduce the same observable state.
// ctx is cancelled on lease loss (first failed heartbeat) or when the
// context passed to WorkerLoop.RunOnce ends; no per-tick deadline is
// applied. Handlers must check it on every suspension point they control.
type Handler func(ctx context.Context, claim repository.Claim) (ProcessResult, error)
