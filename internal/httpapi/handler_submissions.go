package httpapi

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/artzaitsev/ai-assignment-checker/internal/model"
	"github.com/artzaitsev/ai-assignment-checker/internal/stages"
)

// createSubmission handles POST /submissions: a submission whose content is
// already available inline in the request body.
func (s *server) createSubmission(c *gin.Context) {
	var req CreateSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.createUploadedSubmission(c, req.CandidateID, req.AssignmentID, req.Filename, []byte(req.Content))
}

// createSubmissionFromFile handles POST /submissions/file: a multipart
// upload, equivalent to createSubmission but with the content attached as
// a file part instead of inline JSON.
func (s *server) createSubmissionFromFile(c *gin.Context) {
	candidateID := c.PostForm("candidate_id")
	assignmentID := c.PostForm("assignment_id")
	if candidateID == "" || assignmentID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "candidate_id and assignment_id are required"})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	f, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not open uploaded file"})
		return
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read uploaded file"})
		return
	}

	s.createUploadedSubmission(c, candidateID, assignmentID, fileHeader.Filename, content)
}

func (s *server) createUploadedSubmission(c *gin.Context, candidatePublicID, assignmentPublicID, filename string, content []byte) {
	ctx := c.Request.Context()

	candidate, err := s.deps.Repo.GetCandidateByPublicID(ctx, candidatePublicID)
	if err != nil {
		writeError(c, err)
		return
	}
	assignment, err := s.deps.Repo.GetAssignmentByPublicID(ctx, assignmentPublicID)
	if err != nil {
		writeError(c, err)
		return
	}

	submission, err := s.deps.Repo.CreateSubmission(ctx, candidate.ID, assignment.ID, model.StatusUploaded)
	if err != nil {
		writeError(c, err)
		return
	}

	if err := s.writeIntakeArtifact(ctx, submission.PublicID, stages.IntakePayload{RawFilename: filename, RawContent: string(content)}); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, submission)
}

// getSubmission handles GET /submissions/:id.
func (s *server) getSubmission(c *gin.Context) {
	submission, err := s.deps.Repo.GetSubmission(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, submission)
}
