package stages

import (
	"context"
	"errors"
	"fmt"

	"github.com/artzaitsev/ai-assignment-checker/internal/repository"
	"github.com/artzaitsev/ai-assignment-checker/internal/scheduler"
)

// DeliverPayload is the record of what was sent back to the candidate.
type DeliverPayload struct {
	Channel           string  `json:"channel"`
	ExternalMessageID *string `json:"external_message_id,omitempty"`
}

// deliveryChannel is fixed for now: every submission that reached this
// pipeline arrived over Telegram or a direct upload gated behind the same
// account, so feedback always goes back over Telegram.
const deliveryChannel = "telegram"

// DeliverHandler checks that the stored evaluation has a score and records
// the delivery. It does not render feedback text or push a message to
// an external channel — that is the province of a notifier collaborator
// out of scope for this pipeline stage — but it durably records that
// delivery happened, which is what downstream idempotency depends on.
func DeliverHandler(deps Deps) scheduler.Handler {
	return func(ctx context.Context, claim repository.Claim) (scheduler.ProcessResult, error) {
		evaluation, err := deps.Repo.GetEvaluation(ctx, claim.PublicID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return scheduler.ProcessResult{Success: false, ErrorKind: scheduler.ErrorKindPermanentBadInput, Detail: "no evaluation recorded for submission"}, nil
			}
			return scheduler.ProcessResult{}, fmt.Errorf("loading evaluation for delivery: %w", err)
		}
		if evaluation.Score == nil {
			return scheduler.ProcessResult{Success: false, ErrorKind: scheduler.ErrorKindPermanentBadInput, Detail: "evaluation has no score"}, nil
		}

		if err := deps.Repo.RecordDelivery(ctx, claim.PublicID, deliveryChannel, nil); err != nil {
			return scheduler.ProcessResult{}, fmt.Errorf("recording delivery: %w", err)
		}

		ref, err := writeJSONArtifact(ctx, deps.Artifacts, DeliverPayload{Channel: deliveryChannel})
		if err != nil {
			return scheduler.ProcessResult{}, err
		}
		return scheduler.ProcessResult{Success: true, ArtifactRef: ref}, nil
	}
}
