package stages

import (
	"context"
	"errors"

	"github.com/artzaitsev/ai-assignment-checker/internal/model"
	"github.com/artzaitsev/ai-assignment-checker/internal/repository"
	"github.com/artzaitsev/ai-assignment-checker/internal/scheduler"
)

// IntakeStage is the artifact stage name the HTTP ingress writes to when
// it records a raw inbound submission (webhook payload or direct file
// upload), before any pipeline stage has run.
const IntakeStage model.Stage = "intake"

// IntakePayload is what the ingress layer writes under IntakeStage. A
// Telegram-originated submission carries TelegramFileID (resolved by
// TelegramIngestHandler) and the document's file name but no content; a
// direct upload carries its content inline and
// skips the telegram-ingest stage entirely (its pre-status is already
// "uploaded").
type IntakePayload struct {
	TelegramFileID string `json:"telegram_file_id,omitempty"`
	RawFilename    string `json:"raw_filename,omitempty"`
	RawContent     string `json:"raw_content,omitempty"`
}

// TelegramIngestPayload is the output of the telegram-ingest stage: the
// fetched submission content, content-addressed so repeated fetches of the
// same file_id are a no-op on the artifact store.
type TelegramIngestPayload struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

// TelegramIngestHandler resolves a Telegram file_id to submission content
// and returns it as the submission's telegram_ingest artifact, the one
// NormalizeHandler reads first.
func TelegramIngestHandler(deps Deps) scheduler.Handler {
	return func(ctx context.Context, claim repository.Claim) (scheduler.ProcessResult, error) {
		var intake IntakePayload
		if err := readLatestJSON(ctx, deps, claim.PublicID, &intake, IntakeStage); err != nil {
			if errors.Is(err, ErrMissingInputArtifact) || errors.Is(err, errSchemaMismatch) {
				return scheduler.ProcessResult{Success: false, ErrorKind: scheduler.ErrorKindPermanentBadInput, Detail: err.Error()}, nil
			}
			return scheduler.ProcessResult{}, err
		}

		if intake.TelegramFileID == "" {
			return scheduler.ProcessResult{Success: false, ErrorKind: scheduler.ErrorKindPermanentBadInput, Detail: "intake artifact has no telegram_file_id"}, nil
		}

		data, filename, err := deps.Telegram.FetchFile(ctx, intake.TelegramFileID)
		if err != nil {
			select {
			case <-ctx.Done():
				return scheduler.ProcessResult{Success: false, ErrorKind: scheduler.ErrorKindCancelled, Detail: ctx.Err().Error()}, nil
			default:
			}
			return scheduler.ProcessResult{Success: false, ErrorKind: scheduler.ErrorKindRetryableTransient, Detail: err.Error()}, nil
		}

		ref, err := writeJSONArtifact(ctx, deps.Artifacts, TelegramIngestPayload{Filename: filename, Content: string(data)})
		if err != nil {
			return scheduler.ProcessResult{}, err
		}
		return scheduler.ProcessResult{Success: true, ArtifactRef: ref}, nil
	}
}
