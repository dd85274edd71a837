package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/artzaitsev/ai-assignment-checker/internal/model"
)

// feedbackResponse is the candidate-facing readout of a scored submission.
type feedbackResponse struct {
	SubmissionID string            `json:"submission_id"`
	Status       model.Status      `json:"status"`
	Evaluation   *model.Evaluation `json:"evaluation,omitempty"`
}

// getFeedback handles GET /feedback?submission_id=sub_...
func (s *server) getFeedback(c *gin.Context) {
	submissionID := c.Query("submission_id")
	if submissionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "submission_id query parameter is required"})
		return
	}

	ctx := c.Request.Context()
	submission, err := s.deps.Repo.GetSubmission(ctx, submissionID)
	if err != nil {
		writeError(c, err)
		return
	}

	resp := feedbackResponse{SubmissionID: submission.PublicID, Status: submission.Status}
	if submission.Status == model.StatusEvaluated || submission.Status == model.StatusDelivered {
		evaluation, err := s.deps.Repo.GetEvaluation(ctx, submissionID)
		if err == nil {
			resp.Evaluation = &evaluation
		}
	}
	c.JSON(http.StatusOK, resp)
}
