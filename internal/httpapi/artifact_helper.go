package httpapi

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/artzaitsev/ai-assignment-checker/internal/stages"
)

// writeIntakeArtifact records the raw inbound payload (direct upload or
// Telegram file reference) as the submission's first artifact, the one the
// telegram-ingest or normalize stage handler reads back.
func (s *server) writeIntakeArtifact(ctx context.Context, submissionPublicID string, payload stages.IntakePayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding intake payload: %w", err)
	}
	key, err := s.deps.Artifacts.Put(ctx, stages.ArtifactBucket, data)
	if err != nil {
		return fmt.Errorf("storing intake artifact: %w", err)
	}
	return s.deps.Repo.LinkArtifact(ctx, submissionPublicID, stages.IntakeStage, stages.ArtifactBucket, key, 1)
}
