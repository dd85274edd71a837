package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artzaitsev/ai-assignment-checker/internal/model"
	"github.com/artzaitsev/ai-assignment-checker/internal/objectstore"
	"github.com/artzaitsev/ai-assignment-checker/internal/repository"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeRepo struct {
	candidatesByPublic  map[string]model.Candidate
	assignmentsByPublic map[string]model.Assignment
	submissions         map[string]model.Submission
	submissionsBySource map[string]model.Submission
	evaluations         map[string]model.Evaluation
	artifacts           map[string][]model.Artifact
	nextID              int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		candidatesByPublic:  make(map[string]model.Candidate),
		assignmentsByPublic: make(map[string]model.Assignment),
		submissions:         make(map[string]model.Submission),
		submissionsBySource: make(map[string]model.Submission),
		evaluations:         make(map[string]model.Evaluation),
		artifacts:           make(map[string][]model.Artifact),
	}
}

func (f *fakeRepo) genID(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s_internal_%d", prefix, f.nextID)
}

func (f *fakeRepo) CreateCandidate(ctx context.Context, fullName, email string) (model.Candidate, error) {
	c := model.Candidate{ID: f.genID("cand"), PublicID: repository.NewPublicID("cand"), FullName: fullName, Email: email}
	f.candidatesByPublic[c.PublicID] = c
	return c, nil
}

func (f *fakeRepo) GetCandidateByPublicID(ctx context.Context, publicID string) (model.Candidate, error) {
	c, ok := f.candidatesByPublic[publicID]
	if !ok {
		return model.Candidate{}, repository.ErrNotFound
	}
	return c, nil
}

func (f *fakeRepo) CreateAssignment(ctx context.Context, title string, rubric []byte) (model.Assignment, error) {
	a := model.Assignment{ID: f.genID("asg"), PublicID: repository.NewPublicID("asg"), Title: title, Rubric: rubric}
	f.assignmentsByPublic[a.PublicID] = a
	return a, nil
}

func (f *fakeRepo) GetAssignmentByPublicID(ctx context.Context, publicID string) (model.Assignment, error) {
	a, ok := f.assignmentsByPublic[publicID]
	if !ok {
		return model.Assignment{}, repository.ErrNotFound
	}
	return a, nil
}

func (f *fakeRepo) ListAssignments(ctx context.Context) ([]model.Assignment, error) {
	var out []model.Assignment
	for _, a := range f.assignmentsByPublic {
		out = append(out, a)
	}
	return out, nil
}

func (f *fakeRepo) UpsertCandidateSource(ctx context.Context, sourceType, sourceExternalID, fallbackFullName string) (model.Candidate, error) {
	key := sourceType + ":" + sourceExternalID
	for _, c := range f.candidatesByPublic {
		if c.FullName == fallbackFullName && c.Email == key {
			return c, nil
		}
	}
	c := model.Candidate{ID: f.genID("cand"), PublicID: repository.NewPublicID("cand"), FullName: fallbackFullName, Email: key}
	f.candidatesByPublic[c.PublicID] = c
	return c, nil
}

func (f *fakeRepo) CreateSubmission(ctx context.Context, candidateID, assignmentID string, initial model.Status) (model.Submission, error) {
	s := model.Submission{ID: f.genID("sub"), PublicID: repository.NewPublicID("sub"), CandidateID: candidateID, AssignmentID: assignmentID, Status: initial}
	f.submissions[s.PublicID] = s
	return s, nil
}

func (f *fakeRepo) LinkSubmissionSource(ctx context.Context, submissionID, sourceType, sourceExternalID string) error {
	for _, s := range f.submissions {
		if s.ID == submissionID {
			f.submissionsBySource[sourceType+":"+sourceExternalID] = s
			return nil
		}
	}
	return repository.ErrNotFound
}

func (f *fakeRepo) FindSubmissionBySource(ctx context.Context, sourceType, sourceExternalID string) (model.Submission, error) {
	s, ok := f.submissionsBySource[sourceType+":"+sourceExternalID]
	if !ok {
		return model.Submission{}, repository.ErrNotFound
	}
	return s, nil
}

func (f *fakeRepo) GetSubmission(ctx context.Context, publicID string) (model.Submission, error) {
	s, ok := f.submissions[publicID]
	if !ok {
		return model.Submission{}, repository.ErrNotFound
	}
	return s, nil
}

func (f *fakeRepo) GetEvaluation(ctx context.Context, submissionPublicID string) (model.Evaluation, error) {
	e, ok := f.evaluations[submissionPublicID]
	if !ok {
		return model.Evaluation{}, repository.ErrNotFound
	}
	return e, nil
}

func (f *fakeRepo) LatestArtifact(ctx context.Context, submissionPublicID string, stage model.Stage) (model.Artifact, error) {
	var latest model.Artifact
	found := false
	for _, a := range f.artifacts[submissionPublicID] {
		if a.Stage == string(stage) {
			latest, found = a, true
		}
	}
	if !found {
		return model.Artifact{}, repository.ErrNotFound
	}
	return latest, nil
}

func (f *fakeRepo) LinkArtifact(ctx context.Context, submissionPublicID string, stage model.Stage, bucket, objectKey string, schemaVersion int) error {
	f.artifacts[submissionPublicID] = append(f.artifacts[submissionPublicID], model.Artifact{
		SubmissionID: submissionPublicID, Stage: string(stage), Bucket: bucket, ObjectKey: objectKey, SchemaVersion: schemaVersion,
	})
	return nil
}

var _ Repository = (*fakeRepo)(nil)

func newTestRouter() (*gin.Engine, *fakeRepo, objectstore.Store) {
	repo := newFakeRepo()
	store := objectstore.NewInMemoryStore()
	r := NewRouter(Deps{Repo: repo, Artifacts: store, Runners: map[string]ReadinessSource{}})
	return r, repo, store
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestCreateCandidateAndAssignment(t *testing.T) {
	r, _, _ := newTestRouter()

	rec := doJSON(t, r, http.MethodPost, "/candidates", CreateCandidateRequest{FullName: "Ada Lovelace"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var candidate model.Candidate
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &candidate))
	assert.NotEmpty(t, candidate.PublicID)

	rec = doJSON(t, r, http.MethodPost, "/assignments", CreateAssignmentRequest{Title: "Sort a list", Rubric: map[string]any{"max_score": 10}})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, r, http.MethodGet, "/assignments", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateSubmission_WritesIntakeArtifact(t *testing.T) {
	r, repo, store := newTestRouter()

	candRec := doJSON(t, r, http.MethodPost, "/candidates", CreateCandidateRequest{FullName: "Ada"})
	var candidate model.Candidate
	require.NoError(t, json.Unmarshal(candRec.Body.Bytes(), &candidate))

	asgRec := doJSON(t, r, http.MethodPost, "/assignments", CreateAssignmentRequest{Title: "t", Rubric: map[string]any{}})
	var assignment model.Assignment
	require.NoError(t, json.Unmarshal(asgRec.Body.Bytes(), &assignment))

	subRec := doJSON(t, r, http.MethodPost, "/submissions", CreateSubmissionRequest{
		CandidateID: candidate.PublicID, AssignmentID: assignment.PublicID, Content: "my answer", Filename: "a.txt",
	})
	require.Equal(t, http.StatusCreated, subRec.Code)
	var submission model.Submission
	require.NoError(t, json.Unmarshal(subRec.Body.Bytes(), &submission))
	assert.Equal(t, model.StatusUploaded, submission.Status)

	artifacts := repo.artifacts[submission.PublicID]
	require.Len(t, artifacts, 1)
	raw, err := store.Get(context.Background(), artifacts[0].Bucket, artifacts[0].ObjectKey)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "my answer")
}

func TestCreateSubmissionFromFile(t *testing.T) {
	r, _, _ := newTestRouter()

	candRec := doJSON(t, r, http.MethodPost, "/candidates", CreateCandidateRequest{FullName: "Ada"})
	var candidate model.Candidate
	require.NoError(t, json.Unmarshal(candRec.Body.Bytes(), &candidate))
	asgRec := doJSON(t, r, http.MethodPost, "/assignments", CreateAssignmentRequest{Title: "t", Rubric: map[string]any{}})
	var assignment model.Assignment
	require.NoError(t, json.Unmarshal(asgRec.Body.Bytes(), &assignment))

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("candidate_id", candidate.PublicID))
	require.NoError(t, mw.WriteField("assignment_id", assignment.PublicID))
	fw, err := mw.CreateFormFile("file", "answer.txt")
	require.NoError(t, err)
	_, err = fw.Write([]byte("file content"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/submissions/file", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)
}

func TestTelegramWebhook_IsIdempotentByUpdateID(t *testing.T) {
	r, _, _ := newTestRouter()

	asgRec := doJSON(t, r, http.MethodPost, "/assignments", CreateAssignmentRequest{Title: "t", Rubric: map[string]any{}})
	var assignment model.Assignment
	require.NoError(t, json.Unmarshal(asgRec.Body.Bytes(), &assignment))

	update := map[string]any{
		"update_id": 42,
		"message": map[string]any{
			"chat": map[string]any{"id": 555},
			"from": map[string]any{"first_name": "Grace", "last_name": "Hopper"},
			"document": map[string]any{"file_id": "file-abc", "file_name": "sub.txt"},
		},
	}

	path := "/webhooks/telegram?assignment_id=" + assignment.PublicID
	rec1 := doJSON(t, r, http.MethodPost, path, update)
	require.Equal(t, http.StatusCreated, rec1.Code)
	var sub1 model.Submission
	require.NoError(t, json.Unmarshal(rec1.Body.Bytes(), &sub1))

	rec2 := doJSON(t, r, http.MethodPost, path, update)
	require.Equal(t, http.StatusOK, rec2.Code)
	var sub2 model.Submission
	require.NoError(t, json.Unmarshal(rec2.Body.Bytes(), &sub2))

	assert.Equal(t, sub1.PublicID, sub2.PublicID)
}

func TestGetFeedback_ReturnsEvaluationOnceEvaluated(t *testing.T) {
	r, repo, _ := newTestRouter()
	score := 0.85
	repo.submissions["sub_1"] = model.Submission{PublicID: "sub_1", Status: model.StatusEvaluated}
	repo.evaluations["sub_1"] = model.Evaluation{SubmissionID: "sub_1", Score: &score}

	rec := doJSON(t, r, http.MethodGet, "/feedback?submission_id=sub_1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp feedbackResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Evaluation)
	assert.Equal(t, 0.85, *resp.Evaluation.Score)
}

func TestExportRoundTrip(t *testing.T) {
	r, repo, _ := newTestRouter()
	score := 0.5
	repo.submissions["sub_1"] = model.Submission{PublicID: "sub_1", Status: model.StatusDelivered}
	repo.evaluations["sub_1"] = model.Evaluation{SubmissionID: "sub_1", Score: &score}

	rec := doJSON(t, r, http.MethodPost, "/exports", CreateExportRequest{SubmissionIDs: []string{"sub_1"}})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	exportID := created["export_id"]
	require.NotEmpty(t, exportID)

	req := httptest.NewRequest(http.MethodGet, "/exports/"+exportID+"/download", nil)
	dlRec := httptest.NewRecorder()
	r.ServeHTTP(dlRec, req)
	require.Equal(t, http.StatusOK, dlRec.Code)
	assert.Contains(t, dlRec.Body.String(), "sub_1")
}

func TestReady_NoWorkersWiredIsReady(t *testing.T) {
	rec := httptest.NewRecorder()
	r, _, _ := newTestRouter()
	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
