// Package stages implements the four stage handlers: telegram-ingest,
// normalize, evaluate, deliver. Each is a pure function from a claim to a
// scheduler.ProcessResult; all are stateless and idempotent with respect
// to the submission's public id.
package stages

import (
	"context"

	"github.com/artzaitsev/ai-assignment-checker/internal/llmclient"
	"github.com/artzaitsev/ai-assignment-checker/internal/model"
	"github.com/artzaitsev/ai-assignment-checker/internal/objectstore"
	"github.com/artzaitsev/ai-assignment-checker/internal/repository"
)

// Repository is the subset of the repository package a stage handler
// reads and writes beyond the claim lifecycle itself (which the worker
// loop owns).
type Repository interface {
	LatestArtifact(ctx context.Context, submissionPublicID string, stage model.Stage) (model.Artifact, error)
	GetSubmission(ctx context.Context, publicID string) (model.Submission, error)
	UpsertEvaluation(ctx context.Context, submissionPublicID string, e model.Evaluation) error
	GetEvaluation(ctx context.Context, submissionPublicID string) (model.Evaluation, error)
	RecordLLMRun(ctx context.Context, submissionPublicID string, run model.LLMRun) error
	RecordDelivery(ctx context.Context, submissionPublicID, channel string, externalMessageID *string) error
}

var _ Repository = (*repository.PostgresRepository)(nil)

// TelegramFileFetcher retrieves the raw submitted file content referenced
// by a Telegram update. It is the "thin source adapter" the core treats as
// an external collaborator; a full Telegram Bot API client is out of
// scope.
type TelegramFileFetcher interface {
	FetchFile(ctx context.Context, fileID string) (data []byte, filename string, err error)
}

// Deps bundles everything a stage handler needs beyond the claim itself.
type Deps struct {
	Repo       Repository
	Artifacts  objectstore.Store
	LLM        llmclient.Client
	Telegram   TelegramFileFetcher
	// CompatPolicy governs how a handler reacts to an artifact produced
	// with a schema_version it does not recognize: "strict" rejects as
	// permanent_bad_input, "lenient" attempts best-effort decoding.
	CompatPolicy string
}

const schemaVersionV1 = 1

func (d Deps) checkSchemaVersion(got int) error {
	if got == schemaVersionV1 {
		return nil
	}
	if d.CompatPolicy == "lenient" {
		return nil
	}
	return errSchemaMismatch
}
