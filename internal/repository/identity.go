package repository

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"

	"github.com/artzaitsev/ai-assignment-checker/internal/model"
)

// NewPublicID mints an opaque external identifier: prefix + Crockford
// ULID, matching the `^(sub|cand|asg)_[0-9A-HJKMNP-TV-Z]{26}$` format.
func NewPublicID(prefix string) string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id := ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
	return fmt.Sprintf("%s_%s", prefix, id.String())
}

// CreateCandidate inserts a new candidate and returns its minted public id.
func (r *PostgresRepository) CreateCandidate(ctx context.Context, fullName, email string) (model.Candidate, error) {
	publicID := NewPublicID("cand")
	var c model.Candidate
	err := r.pool.QueryRow(ctx, `
		INSERT INTO candidates (public_id, full_name, email)
		VALUES ($1, $2, $3)
		RETURNING id, public_id, full_name, COALESCE(email, ''), created_at, updated_at`,
		publicID, fullName, nullIfEmpty(email)).
		Scan(&c.ID, &c.PublicID, &c.FullName, &c.Email, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return model.Candidate{}, fmt.Errorf("create candidate: %w", err)
	}
	return c, nil
}

// CreateAssignment inserts a new assignment and returns its minted public id.
func (r *PostgresRepository) CreateAssignment(ctx context.Context, title string, rubric []byte) (model.Assignment, error) {
	publicID := NewPublicID("asg")
	var a model.Assignment
	err := r.pool.QueryRow(ctx, `
		INSERT INTO assignments (public_id, title, rubric)
		VALUES ($1, $2, $3)
		RETURNING id, public_id, title, rubric, created_at, updated_at`,
		publicID, title, rubric).
		Scan(&a.ID, &a.PublicID, &a.Title, &a.Rubric, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return model.Assignment{}, fmt.Errorf("create assignment: %w", err)
	}
	return a, nil
}

// ListAssignments returns all assignments, newest first.
func (r *PostgresRepository) ListAssignments(ctx context.Context) ([]model.Assignment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, public_id, title, rubric, created_at, updated_at
		FROM assignments ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	defer rows.Close()

	var out []model.Assignment
	for rows.Next() {
		var a model.Assignment
		if err := rows.Scan(&a.ID, &a.PublicID, &a.Title, &a.Rubric, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpsertCandidateSource resolves an external identity (e.g. a Telegram chat
// id) to a candidate, creating both the candidate and the mapping on first
// sight. DO-NOTHING-on-conflict makes repeated calls idempotent.
func (r *PostgresRepository) UpsertCandidateSource(ctx context.Context, sourceType, sourceExternalID, fallbackFullName string) (model.Candidate, error) {
	var candidateID string
	err := r.pool.QueryRow(ctx, `
		SELECT candidate_id FROM candidate_sources
		WHERE source_type = $1 AND source_external_id = $2`, sourceType, sourceExternalID).
		Scan(&candidateID)
	if err == nil {
		return r.getCandidateByID(ctx, candidateID)
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return model.Candidate{}, fmt.Errorf("lookup candidate source: %w", err)
	}

	c, err := r.CreateCandidate(ctx, fallbackFullName, "")
	if err != nil {
		return model.Candidate{}, err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO candidate_sources (candidate_id, source_type, source_external_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (source_type, source_external_id) DO NOTHING`,
		c.ID, sourceType, sourceExternalID)
	if err != nil {
		return model.Candidate{}, fmt.Errorf("insert candidate source: %w", err)
	}
	return c, nil
}

// GetCandidateByPublicID resolves a candidate's opaque public id to its
// full row, for HTTP ingress paths that only see public ids.
func (r *PostgresRepository) GetCandidateByPublicID(ctx context.Context, publicID string) (model.Candidate, error) {
	var c model.Candidate
	err := r.pool.QueryRow(ctx, `
		SELECT id, public_id, full_name, COALESCE(email, ''), created_at, updated_at
		FROM candidates WHERE public_id = $1`, publicID).
		Scan(&c.ID, &c.PublicID, &c.FullName, &c.Email, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Candidate{}, ErrNotFound
		}
		return model.Candidate{}, fmt.Errorf("get candidate by public id: %w", err)
	}
	return c, nil
}

// GetAssignmentByPublicID resolves an assignment's opaque public id to its
// full row, for HTTP ingress paths that only see public ids.
func (r *PostgresRepository) GetAssignmentByPublicID(ctx context.Context, publicID string) (model.Assignment, error) {
	var a model.Assignment
	err := r.pool.QueryRow(ctx, `
		SELECT id, public_id, title, rubric, created_at, updated_at
		FROM assignments WHERE public_id = $1`, publicID).
		Scan(&a.ID, &a.PublicID, &a.Title, &a.Rubric, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Assignment{}, ErrNotFound
		}
		return model.Assignment{}, fmt.Errorf("get assignment by public id: %w", err)
	}
	return a, nil
}

func (r *PostgresRepository) getCandidateByID(ctx context.Context, id string) (model.Candidate, error) {
	var c model.Candidate
	err := r.pool.QueryRow(ctx, `
		SELECT id, public_id, full_name, COALESCE(email, ''), created_at, updated_at
		FROM candidates WHERE id = $1`, id).
		Scan(&c.ID, &c.PublicID, &c.FullName, &c.Email, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return model.Candidate{}, fmt.Errorf("get candidate: %w", err)
	}
	return c, nil
}

// CreateSubmission inserts a new submission in the given initial status
// (uploaded or telegram_update_received).
func (r *PostgresRepository) CreateSubmission(ctx context.Context, candidateID, assignmentID string, initial model.Status) (model.Submission, error) {
	publicID := NewPublicID("sub")
	var s model.Submission
	err := r.pool.QueryRow(ctx, `
		INSERT INTO submissions (public_id, candidate_id, assignment_id, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, public_id, candidate_id, assignment_id, status,
		          attempt_telegram_ingest, attempt_normalization, attempt_evaluation, attempt_delivery,
		          created_at, updated_at`,
		publicID, candidateID, assignmentID, string(initial)).
		Scan(&s.ID, &s.PublicID, &s.CandidateID, &s.AssignmentID, &s.Status,
			&s.AttemptTelegramIngest, &s.AttemptNormalization, &s.AttemptEvaluation, &s.AttemptDelivery,
			&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return model.Submission{}, fmt.Errorf("create submission: %w", err)
	}
	return s, nil
}

// LinkSubmissionSource records the external event that created a
// submission, e.g. a Telegram update_id, for idempotent intake.
func (r *PostgresRepository) LinkSubmissionSource(ctx context.Context, submissionID, sourceType, sourceExternalID string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO submission_sources (submission_id, source_type, source_external_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (source_type, source_external_id) DO NOTHING`,
		submissionID, sourceType, sourceExternalID)
	if err != nil {
		return fmt.Errorf("link submission source: %w", err)
	}
	return nil
}

// FindSubmissionBySource returns the submission already linked to an
// external event, if any. Used by webhook intake to detect a duplicate
// update_id before creating a new submission.
func (r *PostgresRepository) FindSubmissionBySource(ctx context.Context, sourceType, sourceExternalID string) (model.Submission, error) {
	var s model.Submission
	err := r.pool.QueryRow(ctx, `
		SELECT s.id, s.public_id, s.candidate_id, s.assignment_id, s.status,
		       s.attempt_telegram_ingest, s.attempt_normalization, s.attempt_evaluation, s.attempt_delivery,
		       s.created_at, s.updated_at
		FROM submissions s
		JOIN submission_sources ss ON ss.submission_id = s.id
		WHERE ss.source_type = $1 AND ss.source_external_id = $2`,
		sourceType, sourceExternalID).
		Scan(&s.ID, &s.PublicID, &s.CandidateID, &s.AssignmentID, &s.Status,
			&s.AttemptTelegramIngest, &s.AttemptNormalization, &s.AttemptEvaluation, &s.AttemptDelivery,
			&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Submission{}, ErrNotFound
		}
		return model.Submission{}, fmt.Errorf("find submission by source: %w", err)
	}
	return s, nil
}

// GetSubmission returns a submission by its public id, with full lease and
// error state, for status/trace reads.
func (r *PostgresRepository) GetSubmission(ctx context.Context, publicID string) (model.Submission, error) {
	var s model.Submission
	err := r.pool.QueryRow(ctx, `
		SELECT id, public_id, candidate_id, assignment_id, status,
		       attempt_telegram_ingest, attempt_normalization, attempt_evaluation, attempt_delivery,
		       claimed_by, claimed_at, lease_expires_at, last_error_code, last_error_message,
		       created_at, updated_at
		FROM submissions WHERE public_id = $1`, publicID).
		Scan(&s.ID, &s.PublicID, &s.CandidateID, &s.AssignmentID, &s.Status,
			&s.AttemptTelegramIngest, &s.AttemptNormalization, &s.AttemptEvaluation, &s.AttemptDelivery,
			&s.ClaimedBy, &s.ClaimedAt, &s.LeaseExpiresAt, &s.LastErrorCode, &s.LastErrorMessage,
			&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Submission{}, ErrNotFound
		}
		return model.Submission{}, fmt.Errorf("get submission: %w", err)
	}
	return s, nil
}

// UpsertEvaluation writes the at-most-one evaluation row for a submission.
func (r *PostgresRepository) UpsertEvaluation(ctx context.Context, submissionPublicID string, e model.Evaluation) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO evaluations (
			submission_id, score, criterion_scores, feedback, ai_assistance_likelihood,
			confidence, seed, temperature, chain_version, prompt_version
		)
		SELECT id, $2, $3, $4, $5, $6, $7, $8, $9, $10 FROM submissions WHERE public_id = $1
		ON CONFLICT (submission_id) DO UPDATE SET
			score = EXCLUDED.score,
			criterion_scores = EXCLUDED.criterion_scores,
			feedback = EXCLUDED.feedback,
			ai_assistance_likelihood = EXCLUDED.ai_assistance_likelihood,
			confidence = EXCLUDED.confidence,
			seed = EXCLUDED.seed,
			temperature = EXCLUDED.temperature,
			chain_version = EXCLUDED.chain_version,
			prompt_version = EXCLUDED.prompt_version,
			updated_at = now()`,
		submissionPublicID, e.Score, e.CriterionScores, e.Feedback, e.AIAssistanceLikelihood,
		e.Confidence, e.Seed, e.Temperature, e.ChainVersion, e.PromptVersion)
	if err != nil {
		return fmt.Errorf("upsert evaluation: %w", err)
	}
	return nil
}

// GetEvaluation returns the evaluation for a submission, if any.
func (r *PostgresRepository) GetEvaluation(ctx context.Context, submissionPublicID string) (model.Evaluation, error) {
	var e model.Evaluation
	err := r.pool.QueryRow(ctx, `
		SELECT ev.submission_id, ev.score, ev.criterion_scores, ev.feedback,
		       ev.ai_assistance_likelihood, ev.confidence, ev.seed, ev.temperature,
		       ev.chain_version, ev.prompt_version, ev.created_at, ev.updated_at
		FROM evaluations ev
		JOIN submissions s ON s.id = ev.submission_id
		WHERE s.public_id = $1`, submissionPublicID).
		Scan(&e.SubmissionID, &e.Score, &e.CriterionScores, &e.Feedback,
			&e.AIAssistanceLikelihood, &e.Confidence, &e.Seed, &e.Temperature,
			&e.ChainVersion, &e.PromptVersion, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Evaluation{}, ErrNotFound
		}
		return model.Evaluation{}, fmt.Errorf("get evaluation: %w", err)
	}
	return e, nil
}

// RecordLLMRun appends an audit record of one model invocation.
func (r *PostgresRepository) RecordLLMRun(ctx context.Context, submissionPublicID string, run model.LLMRun) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO llm_runs (
			submission_id, stage, provider, model, model_version, prompt_version,
			rubric_version, result_schema_version, response_language,
			prompt_tokens, completion_tokens, latency_ms
		)
		SELECT id, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12 FROM submissions WHERE public_id = $1`,
		submissionPublicID, run.Stage, run.Provider, run.Model, run.ModelVersion, run.PromptVersion,
		run.RubricVersion, run.ResultSchemaVersion, run.ResponseLanguage,
		run.PromptTokens, run.CompletionTokens, run.LatencyMs)
	if err != nil {
		return fmt.Errorf("record llm run: %w", err)
	}
	return nil
}

// RecordDelivery appends a delivery attempt record.
func (r *PostgresRepository) RecordDelivery(ctx context.Context, submissionPublicID, channel string, externalMessageID *string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO deliveries (submission_id, channel, external_message_id)
		SELECT id, $2, $3 FROM submissions WHERE public_id = $1`,
		submissionPublicID, channel, externalMessageID)
	if err != nil {
		return fmt.Errorf("record delivery: %w", err)
	}
	return nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
