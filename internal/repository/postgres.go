package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/artzaitsev/ai-assignment-checker/internal/model"
)

// PostgresRepository implements ClaimRepository against a pgxpool.Pool with
// raw parameterized SQL. There is no ORM between this package and the
// database: every scheduling invariant is a WHERE clause in this file.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository wraps an already-connected pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

var _ ClaimRepository = (*PostgresRepository)(nil)

// stageSQL holds the seven precomputed statements needed per stage.
// Selecting one is a compile-time switch over model.Stage, never a runtime
// string substitution of a column or status name.
type stageSQL struct {
	claimNext               string
	heartbeat               string
	finalizeSuccess         string
	finalizeFailureRetry    string
	finalizeFailureTerminal string
	reclaimExpiredRetry     string
	reclaimExpiredDead      string
}

var telegramIngestSQL = stageSQL{
	claimNext: `
		UPDATE submissions SET
			status = 'telegram_ingest_in_progress',
			claimed_by = $1,
			claimed_at = now(),
			lease_expires_at = now() + make_interval(secs => $2)
		WHERE id = (
			SELECT id FROM submissions
			WHERE status = 'telegram_update_received'
			ORDER BY created_at
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING public_id, attempt_telegram_ingest, lease_expires_at`,
	heartbeat: `
		UPDATE submissions SET lease_expires_at = now() + make_interval(secs => $3)
		WHERE public_id = $1 AND status = 'telegram_ingest_in_progress'
			AND claimed_by = $2 AND lease_expires_at > now()`,
	finalizeSuccess: `
		UPDATE submissions SET
			status = 'uploaded', claimed_by = NULL, claimed_at = NULL,
			lease_expires_at = NULL, last_error_code = NULL, last_error_message = NULL
		WHERE public_id = $1 AND status = 'telegram_ingest_in_progress'
			AND claimed_by = $2 AND lease_expires_at > now()`,
	finalizeFailureRetry: `
		UPDATE submissions SET
			attempt_telegram_ingest = attempt_telegram_ingest + 1,
			status = 'failed_telegram_ingest', claimed_by = NULL, claimed_at = NULL,
			lease_expires_at = NULL, last_error_code = $3, last_error_message = $4
		WHERE public_id = $1 AND status = 'telegram_ingest_in_progress'
			AND claimed_by = $2 AND lease_expires_at > now()
			AND attempt_telegram_ingest + 1 < $5`,
	finalizeFailureTerminal: `
		UPDATE submissions SET
			status = 'dead_letter', claimed_by = NULL, claimed_at = NULL,
			lease_expires_at = NULL, last_error_code = $3, last_error_message = $4
		WHERE id = (
			SELECT id FROM submissions WHERE public_id = $1 FOR UPDATE
		) AND status = 'telegram_ingest_in_progress' AND claimed_by = $2`,
	reclaimExpiredRetry: `
		UPDATE submissions SET
			attempt_telegram_ingest = attempt_telegram_ingest + 1,
			status = 'failed_telegram_ingest', claimed_by = NULL, claimed_at = NULL,
			lease_expires_at = NULL, last_error_code = $1, last_error_message = $2
		WHERE public_id IN (
			SELECT public_id FROM submissions
			WHERE status = 'telegram_ingest_in_progress' AND lease_expires_at <= now()
				AND attempt_telegram_ingest + 1 < $3
			ORDER BY lease_expires_at LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING public_id`,
	reclaimExpiredDead: `
		UPDATE submissions SET
			status = 'dead_letter', claimed_by = NULL, claimed_at = NULL,
			lease_expires_at = NULL, last_error_code = $1, last_error_message = $2
		WHERE public_id IN (
			SELECT public_id FROM submissions
			WHERE status = 'telegram_ingest_in_progress' AND lease_expires_at <= now()
				AND attempt_telegram_ingest + 1 >= $3
			ORDER BY lease_expires_at LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING public_id`,
}

var normalizeSQL = stageSQL{
	claimNext: `
		UPDATE submissions SET
			status = 'normalization_in_progress',
			claimed_by = $1, claimed_at = now(), lease_expires_at = now() + make_interval(secs => $2)
		WHERE id = (
			SELECT id FROM submissions WHERE status = 'uploaded'
			ORDER BY created_at FOR UPDATE SKIP LOCKED LIMIT 1
		)
		RETURNING public_id, attempt_normalization, lease_expires_at`,
	heartbeat: `
		UPDATE submissions SET lease_expires_at = now() + make_interval(secs => $3)
		WHERE public_id = $1 AND status = 'normalization_in_progress'
			AND claimed_by = $2 AND lease_expires_at > now()`,
	finalizeSuccess: `
		UPDATE submissions SET
			status = 'normalized', claimed_by = NULL, claimed_at = NULL,
			lease_expires_at = NULL, last_error_code = NULL, last_error_message = NULL
		WHERE public_id = $1 AND status = 'normalization_in_progress'
			AND claimed_by = $2 AND lease_expires_at > now()`,
	finalizeFailureRetry: `
		UPDATE submissions SET
			attempt_normalization = attempt_normalization + 1,
			status = 'failed_normalization', claimed_by = NULL, claimed_at = NULL,
			lease_expires_at = NULL, last_error_code = $3, last_error_message = $4
		WHERE public_id = $1 AND status = 'normalization_in_progress'
			AND claimed_by = $2 AND lease_expires_at > now()
			AND attempt_normalization + 1 < $5`,
	finalizeFailureTerminal: `
		UPDATE submissions SET
			status = 'dead_letter', claimed_by = NULL, claimed_at = NULL,
			lease_expires_at = NULL, last_error_code = $3, last_error_message = $4
		WHERE id = (
			SELECT id FROM submissions WHERE public_id = $1 FOR UPDATE
		) AND status = 'normalization_in_progress' AND claimed_by = $2`,
	reclaimExpiredRetry: `
		UPDATE submissions SET
			attempt_normalization = attempt_normalization + 1,
			status = 'failed_normalization', claimed_by = NULL, claimed_at = NULL,
			lease_expires_at = NULL, last_error_code = $1, last_error_message = $2
		WHERE public_id IN (
			SELECT public_id FROM submissions
			WHERE status = 'normalization_in_progress' AND lease_expires_at <= now()
				AND attempt_normalization + 1 < $3
			ORDER BY lease_expires_at LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING public_id`,
	reclaimExpiredDead: `
		UPDATE submissions SET
			status = 'dead_letter', claimed_by = NULL, claimed_at = NULL,
			lease_expires_at = NULL, last_error_code = $1, last_error_message = $2
		WHERE public_id IN (
			SELECT public_id FROM submissions
			WHERE status = 'normalization_in_progress' AND lease_expires_at <= now()
				AND attempt_normalization + 1 >= $3
			ORDER BY lease_expires_at LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING public_id`,
}

var evaluateSQL = stageSQL{
	claimNext: `
		UPDATE submissions SET
			status = 'evaluation_in_progress',
			claimed_by = $1, claimed_at = now(), lease_expires_at = now() + make_interval(secs => $2)
		WHERE id = (
			SELECT id FROM submissions WHERE status = 'normalized'
			ORDER BY created_at FOR UPDATE SKIP LOCKED LIMIT 1
		)
		RETURNING public_id, attempt_evaluation, lease_expires_at`,
	heartbeat: `
		UPDATE submissions SET lease_expires_at = now() + make_interval(secs => $3)
		WHERE public_id = $1 AND status = 'evaluation_in_progress'
			AND claimed_by = $2 AND lease_expires_at > now()`,
	finalizeSuccess: `
		UPDATE submissions SET
			status = 'evaluated', claimed_by = NULL, claimed_at = NULL,
			lease_expires_at = NULL, last_error_code = NULL, last_error_message = NULL
		WHERE public_id = $1 AND status = 'evaluation_in_progress'
			AND claimed_by = $2 AND lease_expires_at > now()`,
	finalizeFailureRetry: `
		UPDATE submissions SET
			attempt_evaluation = attempt_evaluation + 1,
			status = 'failed_evaluation', claimed_by = NULL, claimed_at = NULL,
			lease_expires_at = NULL, last_error_code = $3, last_error_message = $4
		WHERE public_id = $1 AND status = 'evaluation_in_progress'
			AND claimed_by = $2 AND lease_expires_at > now()
			AND attempt_evaluation + 1 < $5`,
	finalizeFailureTerminal: `
		UPDATE submissions SET
			status = 'dead_letter', claimed_by = NULL, claimed_at = NULL,
			lease_expires_at = NULL, last_error_code = $3, last_error_message = $4
		WHERE id = (
			SELECT id FROM submissions WHERE public_id = $1 FOR UPDATE
		) AND status = 'evaluation_in_progress' AND claimed_by = $2`,
	reclaimExpiredRetry: `
		UPDATE submissions SET
			attempt_evaluation = attempt_evaluation + 1,
			status = 'failed_evaluation', claimed_by = NULL, claimed_at = NULL,
			lease_expires_at = NULL, last_error_code = $1, last_error_message = $2
		WHERE public_id IN (
			SELECT public_id FROM submissions
			WHERE status = 'evaluation_in_progress' AND lease_expires_at <= now()
				AND attempt_evaluation + 1 < $3
			ORDER BY lease_expires_at LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING public_id`,
	reclaimExpiredDead: `
		UPDATE submissions SET
			status = 'dead_letter', claimed_by = NULL, claimed_at = NULL,
			lease_expires_at = NULL, last_error_code = $1, last_error_message = $2
		WHERE public_id IN (
			SELECT public_id FROM submissions
			WHERE status = 'evaluation_in_progress' AND lease_expires_at <= now()
				AND attempt_evaluation + 1 >= $3
			ORDER BY lease_expires_at LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING public_id`,
}

var deliverSQL = stageSQL{
	claimNext: `
		UPDATE submissions SET
			status = 'delivery_in_progress',
			claimed_by = $1, claimed_at = now(), lease_expires_at = now() + make_interval(secs => $2)
		WHERE id = (
			SELECT id FROM submissions WHERE status = 'evaluated'
			ORDER BY created_at FOR UPDATE SKIP LOCKED LIMIT 1
		)
		RETURNING public_id, attempt_delivery, lease_expires_at`,
	heartbeat: `
		UPDATE submissions SET lease_expires_at = now() + make_interval(secs => $3)
		WHERE public_id = $1 AND status = 'delivery_in_progress'
			AND claimed_by = $2 AND lease_expires_at > now()`,
	finalizeSuccess: `
		UPDATE submissions SET
			status = 'delivered', claimed_by = NULL, claimed_at = NULL,
			lease_expires_at = NULL, last_error_code = NULL, last_error_message = NULL
		WHERE public_id = $1 AND status = 'delivery_in_progress'
			AND claimed_by = $2 AND lease_expires_at > now()`,
	finalizeFailureRetry: `
		UPDATE submissions SET
			attempt_delivery = attempt_delivery + 1,
			status = 'failed_delivery', claimed_by = NULL, claimed_at = NULL,
			lease_expires_at = NULL, last_error_code = $3, last_error_message = $4
		WHERE public_id = $1 AND status = 'delivery_in_progress'
			AND claimed_by = $2 AND lease_expires_at > now()
			AND attempt_delivery + 1 < $5`,
	finalizeFailureTerminal: `
		UPDATE submissions SET
			status = 'dead_letter', claimed_by = NULL, claimed_at = NULL,
			lease_expires_at = NULL, last_error_code = $3, last_error_message = $4
		WHERE id = (
			SELECT id FROM submissions WHERE public_id = $1 FOR UPDATE
		) AND status = 'delivery_in_progress' AND claimed_by = $2`,
	reclaimExpiredRetry: `
		UPDATE submissions SET
			attempt_delivery = attempt_delivery + 1,
			status = 'failed_delivery', claimed_by = NULL, claimed_at = NULL,
			lease_expires_at = NULL, last_error_code = $1, last_error_message = $2
		WHERE public_id IN (
			SELECT public_id FROM submissions
			WHERE status = 'delivery_in_progress' AND lease_expires_at <= now()
				AND attempt_delivery + 1 < $3
			ORDER BY lease_expires_at LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING public_id`,
	reclaimExpiredDead: `
		UPDATE submissions SET
			status = 'dead_letter', claimed_by = NULL, claimed_at = NULL,
			lease_expires_at = NULL, last_error_code = $1, last_error_message = $2
		WHERE public_id IN (
			SELECT public_id FROM submissions
			WHERE status = 'delivery_in_progress' AND lease_expires_at <= now()
				AND attempt_delivery + 1 >= $3
			ORDER BY lease_expires_at LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING public_id`,
}

// sqlFor is the one place the stage enum is switched over; every query
// string above is a compile-time literal, never assembled with the stage's
// column name at runtime.
func sqlFor(stage model.Stage) (stageSQL, error) {
	switch stage {
	case model.StageTelegramIngest:
		return telegramIngestSQL, nil
	case model.StageNormalize:
		return normalizeSQL, nil
	case model.StageEvaluate:
		return evaluateSQL, nil
	case model.StageDeliver:
		return deliverSQL, nil
	default:
		return stageSQL{}, fmt.Errorf("repository: unknown stage %q", stage)
	}
}

func (r *PostgresRepository) ClaimNext(ctx context.Context, stage model.Stage, workerID string, leaseSeconds int) (Claim, error) {
	q, err := sqlFor(stage)
	if err != nil {
		return Claim{}, err
	}
	var c Claim
	err = r.pool.QueryRow(ctx, q.claimNext, workerID, leaseSeconds).Scan(&c.PublicID, &c.Attempt, &c.LeaseExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Claim{}, ErrNoClaimAvailable
		}
		return Claim{}, fmt.Errorf("claim next (%s): %w", stage, err)
	}
	return c, nil
}

func (r *PostgresRepository) HeartbeatClaim(ctx context.Context, publicID string, stage model.Stage, workerID string, leaseSeconds int) error {
	q, err := sqlFor(stage)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, q.heartbeat, publicID, workerID, leaseSeconds)
	if err != nil {
		return fmt.Errorf("heartbeat claim (%s): %w", stage, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLeaseLost
	}
	return nil
}

func (r *PostgresRepository) FinalizeSuccess(ctx context.Context, publicID string, stage model.Stage, workerID string) error {
	q, err := sqlFor(stage)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, q.finalizeSuccess, publicID, workerID)
	if err != nil {
		return fmt.Errorf("finalize success (%s): %w", stage, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLeaseLost
	}
	return nil
}

func (r *PostgresRepository) FinalizeFailureRetry(ctx context.Context, publicID string, stage model.Stage, workerID string, errorCode, errorMessage string, maxAttempts int) error {
	q, err := sqlFor(stage)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, q.finalizeFailureRetry, publicID, workerID, errorCode, errorMessage, maxAttempts)
	if err != nil {
		return fmt.Errorf("finalize failure retry (%s): %w", stage, err)
	}
	if tag.RowsAffected() == 0 {
		if owned, lerr := r.ownsLease(ctx, publicID, workerID); lerr == nil && !owned {
			return ErrLeaseLost
		}
		return ErrAttemptsExhausted
	}
	return nil
}

func (r *PostgresRepository) FinalizeFailureTerminal(ctx context.Context, publicID string, stage model.Stage, workerID string, errorCode, errorMessage string) error {
	q, err := sqlFor(stage)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, q.finalizeFailureTerminal, publicID, workerID, errorCode, errorMessage)
	if err != nil {
		return fmt.Errorf("finalize failure terminal (%s): %w", stage, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLeaseLost
	}
	return nil
}

// ownsLease distinguishes "attempts exhausted" from "lease lost" after a
// failed FinalizeFailureRetry: it re-reads current ownership. Best-effort;
// a race here just biases toward the (harmless) ErrAttemptsExhausted path,
// which is exactly what finalize_failure_retry's WHERE clause already
// tested for.
func (r *PostgresRepository) ownsLease(ctx context.Context, publicID, workerID string) (bool, error) {
	var owned bool
	err := r.pool.QueryRow(ctx, `
		SELECT claimed_by = $2 AND lease_expires_at > now()
		FROM submissions WHERE public_id = $1`, publicID, workerID).Scan(&owned)
	if err != nil {
		return false, err
	}
	return owned, nil
}

func (r *PostgresRepository) ReclaimExpiredRetry(ctx context.Context, stage model.Stage, errorCode, errorMessage string, maxAttempts, limit int) ([]string, error) {
	q, err := sqlFor(stage)
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, q.reclaimExpiredRetry, errorCode, errorMessage, maxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("reclaim expired retry (%s): %w", stage, err)
	}
	defer rows.Close()
	return scanPublicIDs(rows)
}

func (r *PostgresRepository) ReclaimExpiredDeadLetter(ctx context.Context, stage model.Stage, errorCode, errorMessage string, maxAttempts, limit int) ([]string, error) {
	q, err := sqlFor(stage)
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, q.reclaimExpiredDead, errorCode, errorMessage, maxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("reclaim expired dead letter (%s): %w", stage, err)
	}
	defer rows.Close()
	return scanPublicIDs(rows)
}

func scanPublicIDs(rows pgx.Rows) ([]string, error) {
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *PostgresRepository) TransitionState(ctx context.Context, publicID string, from, to model.Status) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE submissions SET status = $3, updated_at = now()
		WHERE public_id = $1 AND status = $2`, publicID, string(from), string(to))
	if err != nil {
		return fmt.Errorf("transition state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLeaseLost
	}
	return nil
}

func (r *PostgresRepository) LinkArtifact(ctx context.Context, submissionPublicID string, stage model.Stage, bucket, objectKey string, schemaVersion int) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO artifacts (submission_id, stage, bucket, object_key, schema_version)
		SELECT id, $2, $3, $4, $5 FROM submissions WHERE public_id = $1`,
		submissionPublicID, string(stage), bucket, objectKey, schemaVersion)
	if err != nil {
		return fmt.Errorf("link artifact: %w", err)
	}
	return nil
}

func (r *PostgresRepository) LatestArtifact(ctx context.Context, submissionPublicID string, stage model.Stage) (model.Artifact, error) {
	var a model.Artifact
	err := r.pool.QueryRow(ctx, `
		SELECT a.id, $1, a.stage, a.bucket, a.object_key, a.schema_version, a.created_at
		FROM artifacts a
		JOIN submissions s ON s.id = a.submission_id
		WHERE s.public_id = $1 AND a.stage = $2
		ORDER BY a.created_at DESC, a.id DESC
		LIMIT 1`, submissionPublicID, string(stage)).
		Scan(&a.ID, &a.SubmissionID, &a.Stage, &a.Bucket, &a.ObjectKey, &a.SchemaVersion, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Artifact{}, ErrNotFound
		}
		return model.Artifact{}, fmt.Errorf("latest artifact: %w", err)
	}
	return a, nil
}
