package stages

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/artzaitsev/ai-assignment-checker/internal/llmclient"
	"github.com/artzaitsev/ai-assignment-checker/internal/model"
	"github.com/artzaitsev/ai-assignment-checker/internal/repository"
	"github.com/artzaitsev/ai-assignment-checker/internal/scheduler"
)

// evaluationTemperature and evaluationChainVersion/evaluationPromptVersion
// are fixed per spec.md §4.4's reproducibility-auditing requirement: every
// evaluation run records the exact sampling and prompt parameters that
// produced it.
const (
	evaluationTemperature   = 0.2
	evaluationChainVersion  = "v1"
	evaluationPromptVersion = "v1"
)

func llmEvaluateRequest(submissionPublicID, text, rubricVersion string) llmclient.EvaluateRequest {
	return llmclient.EvaluateRequest{
		SubmissionID:  submissionPublicID,
		Prompt:        text,
		RubricVersion: rubricVersion,
		Seed:          evaluationSeed(submissionPublicID),
		Temperature:   evaluationTemperature,
	}
}

// EvaluatePayload is the scored result of running a normalized submission
// through the evaluation model.
type EvaluatePayload struct {
	Score                  float64  `json:"score"`
	CriterionScores        []byte   `json:"criterion_scores,omitempty"`
	Feedback               []byte   `json:"feedback,omitempty"`
	AIAssistanceLikelihood *float64 `json:"ai_assistance_likelihood,omitempty"`
	Confidence             *float64 `json:"confidence,omitempty"`
}

// evaluationSeed is deterministic per submission so retries of the same
// claim ask the model to reproduce its prior answer rather than sampling a
// fresh one.
func evaluationSeed(submissionPublicID string) int64 {
	var sum int64
	for _, r := range submissionPublicID {
		sum = sum*31 + int64(r)
	}
	if sum < 0 {
		sum = -sum
	}
	return sum
}

// EvaluateHandler scores a normalized submission against its assignment's
// rubric using the configured LLM client, recording both the durable
// evaluation row and an audit trail entry in llm_runs.
func EvaluateHandler(deps Deps) scheduler.Handler {
	return func(ctx context.Context, claim repository.Claim) (scheduler.ProcessResult, error) {
		var normalized NormalizePayload
		if err := readLatestJSON(ctx, deps, claim.PublicID, &normalized, model.StageNormalize); err != nil {
			if errors.Is(err, ErrMissingInputArtifact) || errors.Is(err, errSchemaMismatch) {
				return scheduler.ProcessResult{Success: false, ErrorKind: scheduler.ErrorKindPermanentBadInput, Detail: err.Error()}, nil
			}
			return scheduler.ProcessResult{}, err
		}

		submission, err := deps.Repo.GetSubmission(ctx, claim.PublicID)
		if err != nil {
			return scheduler.ProcessResult{}, fmt.Errorf("loading submission for evaluation: %w", err)
		}

		rubricVersion := submission.AssignmentID

		resp, err := deps.LLM.Evaluate(ctx, llmEvaluateRequest(claim.PublicID, normalized.Text, rubricVersion))
		if err != nil {
			select {
			case <-ctx.Done():
				return scheduler.ProcessResult{Success: false, ErrorKind: scheduler.ErrorKindCancelled, Detail: ctx.Err().Error()}, nil
			default:
			}
			return scheduler.ProcessResult{Success: false, ErrorKind: scheduler.ErrorKindRetryableTransient, Detail: err.Error()}, nil
		}

		var decoded EvaluatePayload
		if jsonErr := json.Unmarshal([]byte(resp.Content), &decoded); jsonErr != nil {
			return scheduler.ProcessResult{Success: false, ErrorKind: scheduler.ErrorKindRetryableTransient, Detail: fmt.Sprintf("model returned non-JSON content: %v", jsonErr)}, nil
		}

		promptTokens, completionTokens, latencyMs := resp.PromptTokens, resp.CompletionTokens, resp.LatencyMs
		modelVersion := resp.ModelVersion
		promptVersion := evaluationPromptVersion
		run := model.LLMRun{
			SubmissionID:  claim.PublicID,
			Stage:         string(model.StageEvaluate),
			Provider:      "grpc",
			Model:         deps.LLM.Model(),
			ModelVersion:  &modelVersion,
			RubricVersion: &rubricVersion,
			PromptVersion: &promptVersion,

			PromptTokens:     &promptTokens,
			CompletionTokens: &completionTokens,
			LatencyMs:        &latencyMs,
		}
		if err := deps.Repo.RecordLLMRun(ctx, claim.PublicID, run); err != nil {
			return scheduler.ProcessResult{}, fmt.Errorf("recording llm run: %w", err)
		}

		score := decoded.Score
		seed := evaluationSeed(claim.PublicID)
		temperature := evaluationTemperature
		chainVersion := evaluationChainVersion
		evaluation := model.Evaluation{
			SubmissionID:           claim.PublicID,
			Score:                  &score,
			CriterionScores:        decoded.CriterionScores,
			Feedback:               decoded.Feedback,
			AIAssistanceLikelihood: decoded.AIAssistanceLikelihood,
			Confidence:             decoded.Confidence,
			Seed:                   &seed,
			Temperature:            &temperature,
			ChainVersion:           &chainVersion,
			PromptVersion:          &promptVersion,
		}
		if err := deps.Repo.UpsertEvaluation(ctx, claim.PublicID, evaluation); err != nil {
			return scheduler.ProcessResult{}, fmt.Errorf("upserting evaluation: %w", err)
		}

		ref, err := writeJSONArtifact(ctx, deps.Artifacts, decoded)
		if err != nil {
			return scheduler.ProcessResult{}, err
		}
		return scheduler.ProcessResult{Success: true, ArtifactRef: ref}, nil
	}
}
