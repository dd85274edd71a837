// Package httpapi is the thin gin adapter over the submission pipeline: it
// turns HTTP requests into repository/objectstore calls and never touches
// claim/lease state directly — that is the scheduler's job.
package httpapi

import (
	"context"

	"github.com/artzaitsev/ai-assignment-checker/internal/model"
	"github.com/artzaitsev/ai-assignment-checker/internal/objectstore"
	"github.com/artzaitsev/ai-assignment-checker/internal/repository"
	"github.com/artzaitsev/ai-assignment-checker/internal/scheduler"
)

// Repository is the subset of repository.PostgresRepository the HTTP layer
// needs, beyond the claim lifecycle owned by the scheduler.
type Repository interface {
	CreateCandidate(ctx context.Context, fullName, email string) (model.Candidate, error)
	GetCandidateByPublicID(ctx context.Context, publicID string) (model.Candidate, error)
	CreateAssignment(ctx context.Context, title string, rubric []byte) (model.Assignment, error)
	GetAssignmentByPublicID(ctx context.Context, publicID string) (model.Assignment, error)
	ListAssignments(ctx context.Context) ([]model.Assignment, error)
	UpsertCandidateSource(ctx context.Context, sourceType, sourceExternalID, fallbackFullName string) (model.Candidate, error)
	CreateSubmission(ctx context.Context, candidateID, assignmentID string, initial model.Status) (model.Submission, error)
	LinkSubmissionSource(ctx context.Context, submissionID, sourceType, sourceExternalID string) error
	FindSubmissionBySource(ctx context.Context, sourceType, sourceExternalID string) (model.Submission, error)
	GetSubmission(ctx context.Context, publicID string) (model.Submission, error)
	GetEvaluation(ctx context.Context, submissionPublicID string) (model.Evaluation, error)
	LatestArtifact(ctx context.Context, submissionPublicID string, stage model.Stage) (model.Artifact, error)
	LinkArtifact(ctx context.Context, submissionPublicID string, stage model.Stage, bucket, objectKey string, schemaVersion int) error
}

var _ Repository = (*repository.PostgresRepository)(nil)

// ReadinessSource reports the worker runner counters exposed by /ready.
// bootstrap.Build wires an empty map for the `api` role, which runs no
// worker loop; worker roles build no router at all.
type ReadinessSource interface {
	Snapshot() scheduler.Counters
}

// Deps bundles everything the HTTP handlers need.
type Deps struct {
	Repo      Repository
	Artifacts objectstore.Store
	Runners   map[string]ReadinessSource // role name -> runner, for /ready
}
