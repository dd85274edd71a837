package repository_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artzaitsev/ai-assignment-checker/internal/model"
	"github.com/artzaitsev/ai-assignment-checker/internal/repository"
	"github.com/artzaitsev/ai-assignment-checker/internal/testsupport"
)

func newTestRepo(t *testing.T) *repository.PostgresRepository {
	t.Helper()
	pool := testsupport.NewTestPool(t)
	return repository.NewPostgresRepository(pool)
}

func seedUploadedSubmission(t *testing.T, ctx context.Context, repo *repository.PostgresRepository) model.Submission {
	t.Helper()
	cand, err := repo.CreateCandidate(ctx, "Ada Lovelace", "ada@example.com")
	require.NoError(t, err)
	asg, err := repo.CreateAssignment(ctx, "Reverse a list", []byte(`{}`))
	require.NoError(t, err)
	sub, err := repo.CreateSubmission(ctx, cand.ID, asg.ID, model.StatusUploaded)
	require.NoError(t, err)
	return sub
}

// TestClaimNext_SkipLockedExclusivity verifies that with ten workers racing
// on one submission, exactly one claims it and the rest see
// ErrNoClaimAvailable in the same tick.
func TestClaimNext_SkipLockedExclusivity(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	seedUploadedSubmission(t, ctx, repo)

	const numWorkers = 10
	var claimed int32
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := repo.ClaimNext(ctx, model.StageNormalize, workerID(n), 30)
			if err == nil {
				atomic.AddInt32(&claimed, 1)
			} else {
				assert.ErrorIs(t, err, repository.ErrNoClaimAvailable)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), claimed, "exactly one worker must claim the submission")
}

func TestHeartbeatClaim_ExtendsLeaseAndDetectsLoss(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	sub := seedUploadedSubmission(t, ctx, repo)

	claim, err := repo.ClaimNext(ctx, model.StageNormalize, "worker-a", 1)
	require.NoError(t, err)
	require.Equal(t, sub.PublicID, claim.PublicID)

	require.NoError(t, repo.HeartbeatClaim(ctx, claim.PublicID, model.StageNormalize, "worker-a", 30))

	err = repo.HeartbeatClaim(ctx, claim.PublicID, model.StageNormalize, "worker-b", 30)
	assert.ErrorIs(t, err, repository.ErrLeaseLost)
}

func TestCrashRecover_ReclaimMovesToFailedStatusWithIncrementedAttempt(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	sub := seedUploadedSubmission(t, ctx, repo)

	_, err := repo.ClaimNext(ctx, model.StageNormalize, "worker-crashed", 1)
	require.NoError(t, err)

	time.Sleep(2 * time.Second)

	ids, err := repo.ReclaimExpiredRetry(ctx, model.StageNormalize, "retryable_transient", "lease expired", 3, 100)
	require.NoError(t, err)
	require.Contains(t, ids, sub.PublicID)

	after, err := repo.GetSubmission(ctx, sub.PublicID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailedNormalization, after.Status)
	assert.Equal(t, 1, after.AttemptNormalization)
	assert.Nil(t, after.ClaimedBy)
}

func TestAttemptExhaustion_MovesToDeadLetter(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	sub := seedUploadedSubmission(t, ctx, repo)
	require.NoError(t, repo.TransitionState(ctx, sub.PublicID, model.StatusUploaded, model.StatusNormalized))

	const maxAttempts = 3
	for i := 0; i < maxAttempts; i++ {
		claim, err := repo.ClaimNext(ctx, model.StageEvaluate, "worker-x", 30)
		require.NoError(t, err)

		err = repo.FinalizeFailureRetry(ctx, claim.PublicID, model.StageEvaluate, "worker-x",
			"retryable_transient", "boom", maxAttempts)
		if i < maxAttempts-1 {
			require.NoError(t, err)
			require.NoError(t, repo.TransitionState(ctx, claim.PublicID, model.StatusFailedEvaluation, model.StatusNormalized))
			continue
		}
		require.ErrorIs(t, err, repository.ErrAttemptsExhausted)
		require.NoError(t, repo.FinalizeFailureTerminal(ctx, claim.PublicID, model.StageEvaluate, "worker-x",
			"retryable_transient", "boom"))
	}

	final, err := repo.GetSubmission(ctx, sub.PublicID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusDeadLetter, final.Status)
	assert.Equal(t, "retryable_transient", *final.LastErrorCode)
}

func TestLeaseLoss_WinnerDeterminesOutcome(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	sub := seedUploadedSubmission(t, ctx, repo)

	claimA, err := repo.ClaimNext(ctx, model.StageNormalize, "worker-a", 1)
	require.NoError(t, err)

	time.Sleep(2 * time.Second)
	_, err = repo.ReclaimExpiredRetry(ctx, model.StageNormalize, "retryable_transient", "expired", 3, 100)
	require.NoError(t, err)

	err = repo.FinalizeSuccess(ctx, claimA.PublicID, model.StageNormalize, "worker-a")
	assert.ErrorIs(t, err, repository.ErrLeaseLost)

	final, err := repo.GetSubmission(ctx, sub.PublicID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailedNormalization, final.Status)
}

func TestUpsertCandidateSource_IsIdempotent(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	first, err := repo.UpsertCandidateSource(ctx, "telegram", "chat-123", "Grace Hopper")
	require.NoError(t, err)

	second, err := repo.UpsertCandidateSource(ctx, "telegram", "chat-123", "Grace Hopper")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
}

// TestWebhookSubmissionSource_RepeatedIntakeProducesOneSubmission exercises
// the find-or-create sequence the webhook handler performs: look up by
// (source_type, source_external_id) before creating, so a re-posted
// update_id resolves to the same submission instead of a new one.
func TestWebhookSubmissionSource_RepeatedIntakeProducesOneSubmission(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	cand, err := repo.CreateCandidate(ctx, "Margaret Hamilton", "")
	require.NoError(t, err)
	asg, err := repo.CreateAssignment(ctx, "Write a parser", []byte(`{}`))
	require.NoError(t, err)

	const updateID = "42"
	intake := func() model.Submission {
		if existing, err := repo.FindSubmissionBySource(ctx, "telegram_webhook", updateID); err == nil {
			return existing
		}
		sub, err := repo.CreateSubmission(ctx, cand.ID, asg.ID, model.StatusTelegramUpdateReceived)
		require.NoError(t, err)
		require.NoError(t, repo.LinkSubmissionSource(ctx, sub.ID, "telegram_webhook", updateID))
		return sub
	}

	first := intake()
	second := intake()

	assert.Equal(t, first.PublicID, second.PublicID)
}

func workerID(n int) string {
	return string(rune('a' + n))
}
