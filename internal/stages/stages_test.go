package stages

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artzaitsev/ai-assignment-checker/internal/llmclient"
	"github.com/artzaitsev/ai-assignment-checker/internal/model"
	"github.com/artzaitsev/ai-assignment-checker/internal/objectstore"
	"github.com/artzaitsev/ai-assignment-checker/internal/repository"
)

// fakeRepo implements the stages.Repository surface in memory.
type fakeRepo struct {
	artifacts   map[string][]model.Artifact // submissionID -> in append order
	submissions map[string]model.Submission
	evaluations map[string]model.Evaluation
	llmRuns     []model.LLMRun
	deliveries  []model.Delivery
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		artifacts:   make(map[string][]model.Artifact),
		submissions: make(map[string]model.Submission),
		evaluations: make(map[string]model.Evaluation),
	}
}

func (f *fakeRepo) seedArtifact(store objectstore.Store, submissionID string, stage model.Stage, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	key, err := store.Put(context.Background(), ArtifactBucket, data)
	if err != nil {
		panic(err)
	}
	f.artifacts[submissionID] = append(f.artifacts[submissionID], model.Artifact{
		SubmissionID:  submissionID,
		Stage:         string(stage),
		Bucket:        ArtifactBucket,
		ObjectKey:     key,
		SchemaVersion: schemaVersionV1,
	})
}

func (f *fakeRepo) LatestArtifact(ctx context.Context, submissionPublicID string, stage model.Stage) (model.Artifact, error) {
	var latest model.Artifact
	found := false
	for _, a := range f.artifacts[submissionPublicID] {
		if a.Stage == string(stage) {
			latest = a
			found = true
		}
	}
	if !found {
		return model.Artifact{}, repository.ErrNotFound
	}
	return latest, nil
}

func (f *fakeRepo) GetSubmission(ctx context.Context, publicID string) (model.Submission, error) {
	s, ok := f.submissions[publicID]
	if !ok {
		return model.Submission{}, repository.ErrNotFound
	}
	return s, nil
}

func (f *fakeRepo) UpsertEvaluation(ctx context.Context, submissionPublicID string, e model.Evaluation) error {
	f.evaluations[submissionPublicID] = e
	return nil
}

func (f *fakeRepo) GetEvaluation(ctx context.Context, submissionPublicID string) (model.Evaluation, error) {
	e, ok := f.evaluations[submissionPublicID]
	if !ok {
		return model.Evaluation{}, repository.ErrNotFound
	}
	return e, nil
}

func (f *fakeRepo) RecordLLMRun(ctx context.Context, submissionPublicID string, run model.LLMRun) error {
	f.llmRuns = append(f.llmRuns, run)
	return nil
}

func (f *fakeRepo) RecordDelivery(ctx context.Context, submissionPublicID, channel string, externalMessageID *string) error {
	f.deliveries = append(f.deliveries, model.Delivery{SubmissionID: submissionPublicID, Channel: channel, ExternalMessageID: externalMessageID})
	return nil
}

var _ Repository = (*fakeRepo)(nil)

type fakeTelegram struct {
	data     []byte
	filename string
	err      error
}

func (f fakeTelegram) FetchFile(ctx context.Context, fileID string) ([]byte, string, error) {
	if f.err != nil {
		return nil, "", f.err
	}
	return f.data, f.filename, nil
}

type fakeLLM struct {
	resp llmclient.EvaluateResponse
	err  error
}

func (f fakeLLM) Evaluate(ctx context.Context, req llmclient.EvaluateRequest) (llmclient.EvaluateResponse, error) {
	return f.resp, f.err
}

func (f fakeLLM) Model() string { return "fake-model" }

func TestTelegramIngestHandler_FetchesAndWritesArtifact(t *testing.T) {
	repo := newFakeRepo()
	store := objectstore.NewInMemoryStore()
	repo.seedArtifact(store, "sub_1", IntakeStage, IntakePayload{TelegramFileID: "file123"})

	deps := Deps{
		Repo:      repo,
		Artifacts: store,
		Telegram:  fakeTelegram{data: []byte("hello world"), filename: "answer.txt"},
	}

	result, err := TelegramIngestHandler(deps)(context.Background(), repository.Claim{PublicID: "sub_1"})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.NotNil(t, result.ArtifactRef)

	raw, err := store.Get(context.Background(), result.ArtifactRef.Bucket, result.ArtifactRef.ObjectKey)
	require.NoError(t, err)
	var payload TelegramIngestPayload
	require.NoError(t, json.Unmarshal(raw, &payload))
	assert.Equal(t, "hello world", payload.Content)
	assert.Equal(t, "answer.txt", payload.Filename)
}

func TestTelegramIngestHandler_MissingFileIDIsPermanent(t *testing.T) {
	repo := newFakeRepo()
	store := objectstore.NewInMemoryStore()
	repo.seedArtifact(store, "sub_1", IntakeStage, IntakePayload{})

	deps := Deps{Repo: repo, Artifacts: store, Telegram: fakeTelegram{}}
	result, err := TelegramIngestHandler(deps)(context.Background(), repository.Claim{PublicID: "sub_1"})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "permanent_bad_input", string(result.ErrorKind))
}

func TestNormalizeHandler_PrefersTelegramArtifactOverIntake(t *testing.T) {
	repo := newFakeRepo()
	store := objectstore.NewInMemoryStore()
	repo.seedArtifact(store, "sub_1", IntakeStage, IntakePayload{RawFilename: "ignored.txt", RawContent: "wrong"})
	repo.seedArtifact(store, "sub_1", model.StageTelegramIngest, TelegramIngestPayload{Filename: "right.txt", Content: "  from telegram  "})

	deps := Deps{Repo: repo, Artifacts: store}
	result, err := NormalizeHandler(deps)(context.Background(), repository.Claim{PublicID: "sub_1"})
	require.NoError(t, err)
	require.True(t, result.Success)

	raw, _ := store.Get(context.Background(), result.ArtifactRef.Bucket, result.ArtifactRef.ObjectKey)
	var payload NormalizePayload
	require.NoError(t, json.Unmarshal(raw, &payload))
	assert.Equal(t, "right.txt", payload.Filename)
	assert.Equal(t, "from telegram", payload.Text)
}

func TestNormalizeHandler_FallsBackToDirectUpload(t *testing.T) {
	repo := newFakeRepo()
	store := objectstore.NewInMemoryStore()
	repo.seedArtifact(store, "sub_2", IntakeStage, IntakePayload{RawFilename: "direct.txt", RawContent: "direct content"})

	deps := Deps{Repo: repo, Artifacts: store}
	result, err := NormalizeHandler(deps)(context.Background(), repository.Claim{PublicID: "sub_2"})
	require.NoError(t, err)
	require.True(t, result.Success)

	raw, _ := store.Get(context.Background(), result.ArtifactRef.Bucket, result.ArtifactRef.ObjectKey)
	var payload NormalizePayload
	require.NoError(t, json.Unmarshal(raw, &payload))
	assert.Equal(t, "direct.txt", payload.Filename)
	assert.Equal(t, "direct content", payload.Text)
}

func TestNormalizeHandler_NoArtifactIsPermanentBadInput(t *testing.T) {
	repo := newFakeRepo()
	store := objectstore.NewInMemoryStore()

	deps := Deps{Repo: repo, Artifacts: store}
	result, err := NormalizeHandler(deps)(context.Background(), repository.Claim{PublicID: "sub_missing"})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "permanent_bad_input", string(result.ErrorKind))
}

func TestEvaluateHandler_ScoresAndRecordsAuditTrail(t *testing.T) {
	repo := newFakeRepo()
	store := objectstore.NewInMemoryStore()
	repo.seedArtifact(store, "sub_1", model.StageNormalize, NormalizePayload{Filename: "a.txt", Text: "some answer"})
	repo.submissions["sub_1"] = model.Submission{PublicID: "sub_1", AssignmentID: "asn_1"}

	content, err := json.Marshal(EvaluatePayload{Score: 0.75})
	require.NoError(t, err)

	deps := Deps{
		Repo:      repo,
		Artifacts: store,
		LLM: fakeLLM{resp: llmclient.EvaluateResponse{
			Content:          string(content),
			ModelVersion:     "v1",
			PromptTokens:     10,
			CompletionTokens: 20,
			LatencyMs:        5,
		}},
	}

	result, err := EvaluateHandler(deps)(context.Background(), repository.Claim{PublicID: "sub_1"})
	require.NoError(t, err)
	require.True(t, result.Success)

	eval, ok := repo.evaluations["sub_1"]
	require.True(t, ok)
	require.NotNil(t, eval.Score)
	assert.Equal(t, 0.75, *eval.Score)
	require.Len(t, repo.llmRuns, 1)
	assert.Equal(t, "fake-model", repo.llmRuns[0].Model)
}

func TestEvaluateHandler_NonJSONModelOutputIsRetryableTransient(t *testing.T) {
	repo := newFakeRepo()
	store := objectstore.NewInMemoryStore()
	repo.seedArtifact(store, "sub_1", model.StageNormalize, NormalizePayload{Filename: "a.txt", Text: "some answer"})
	repo.submissions["sub_1"] = model.Submission{PublicID: "sub_1", AssignmentID: "asn_1"}

	deps := Deps{
		Repo:      repo,
		Artifacts: store,
		LLM:       fakeLLM{resp: llmclient.EvaluateResponse{Content: "not json"}},
	}

	result, err := EvaluateHandler(deps)(context.Background(), repository.Claim{PublicID: "sub_1"})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "retryable_transient", string(result.ErrorKind))
}

func TestDeliverHandler_RecordsDeliveryForScoredSubmission(t *testing.T) {
	repo := newFakeRepo()
	store := objectstore.NewInMemoryStore()
	score := 0.9
	repo.evaluations["sub_1"] = model.Evaluation{SubmissionID: "sub_1", Score: &score}

	deps := Deps{Repo: repo, Artifacts: store}
	result, err := DeliverHandler(deps)(context.Background(), repository.Claim{PublicID: "sub_1"})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Len(t, repo.deliveries, 1)
	assert.Equal(t, deliveryChannel, repo.deliveries[0].Channel)
}

func TestDeliverHandler_MissingEvaluationIsPermanentBadInput(t *testing.T) {
	repo := newFakeRepo()
	store := objectstore.NewInMemoryStore()

	deps := Deps{Repo: repo, Artifacts: store}
	result, err := DeliverHandler(deps)(context.Background(), repository.Claim{PublicID: "sub_missing"})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "permanent_bad_input", string(result.ErrorKind))
}
