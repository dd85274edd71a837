package stages

import (
	"context"
	"errors"
	"strings"

	"github.com/artzaitsev/ai-assignment-checker/internal/model"
	"github.com/artzaitsev/ai-assignment-checker/internal/repository"
	"github.com/artzaitsev/ai-assignment-checker/internal/scheduler"
)

// NormalizePayload is the pipeline-internal representation every downstream
// stage consumes, regardless of whether the submission arrived via
// Telegram or a direct file upload.
type NormalizePayload struct {
	Filename string `json:"filename"`
	Text     string `json:"text"`
}

// NormalizeHandler converts an uploaded submission (however it arrived)
// into the canonical plain-text form the evaluate stage scores. A
// submission uploaded directly carries its content under IntakeStage; one
// that arrived over Telegram carries it under StageTelegramIngest.
func NormalizeHandler(deps Deps) scheduler.Handler {
	return func(ctx context.Context, claim repository.Claim) (scheduler.ProcessResult, error) {
		var telegram TelegramIngestPayload
		err := readLatestJSON(ctx, deps, claim.PublicID, &telegram, model.StageTelegramIngest)
		filename, content := telegram.Filename, telegram.Content

		if err != nil {
			if errors.Is(err, errSchemaMismatch) {
				return scheduler.ProcessResult{Success: false, ErrorKind: scheduler.ErrorKindPermanentBadInput, Detail: err.Error()}, nil
			}
			if !errors.Is(err, ErrMissingInputArtifact) {
				return scheduler.ProcessResult{}, err
			}
			var direct IntakePayload
			if derr := readLatestJSON(ctx, deps, claim.PublicID, &direct, IntakeStage); derr != nil {
				if errors.Is(derr, ErrMissingInputArtifact) || errors.Is(derr, errSchemaMismatch) {
					return scheduler.ProcessResult{Success: false, ErrorKind: scheduler.ErrorKindPermanentBadInput, Detail: derr.Error()}, nil
				}
				return scheduler.ProcessResult{}, derr
			}
			filename = direct.RawFilename
			content = direct.RawContent
		}

		text := strings.TrimSpace(content)
		if text == "" {
			return scheduler.ProcessResult{Success: false, ErrorKind: scheduler.ErrorKindPermanentBadInput, Detail: "submission content is empty after normalization"}, nil
		}

		ref, err := writeJSONArtifact(ctx, deps.Artifacts, NormalizePayload{Filename: filename, Text: text})
		if err != nil {
			return scheduler.ProcessResult{}, err
		}
		return scheduler.ProcessResult{Success: true, ArtifactRef: ref}, nil
	}
}
