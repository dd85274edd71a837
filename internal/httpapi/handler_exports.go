package httpapi

import (
	"bytes"
	"encoding/csv"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/artzaitsev/ai-assignment-checker/internal/repository"
)

const exportBucket = "exports"

// createExport handles POST /exports: renders a CSV of score/status per
// requested submission and stores it content-addressed for later download.
func (s *server) createExport(c *gin.Context) {
	var req CreateExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"submission_id", "status", "score"})

	for _, submissionID := range req.SubmissionIDs {
		submission, err := s.deps.Repo.GetSubmission(ctx, submissionID)
		if err != nil {
			writeError(c, err)
			return
		}

		score := ""
		if evaluation, err := s.deps.Repo.GetEvaluation(ctx, submissionID); err == nil && evaluation.Score != nil {
			score = strconv.FormatFloat(*evaluation.Score, 'f', -1, 64)
		} else if err != nil && !errors.Is(err, repository.ErrNotFound) {
			writeError(c, err)
			return
		}

		_ = w.Write([]string{submission.PublicID, string(submission.Status), score})
	}
	w.Flush()

	key, err := s.deps.Artifacts.Put(ctx, exportBucket, buf.Bytes())
	if err != nil {
		writeError(c, err)
		return
	}

	exportID := repository.NewPublicID("exp")
	s.exportsMu.Lock()
	s.exports[exportID] = exportRecord{bucket: exportBucket, objectKey: key}
	s.exportsMu.Unlock()

	c.JSON(http.StatusCreated, gin.H{"export_id": exportID, "status": "ready"})
}

// downloadExport handles GET /exports/:id/download.
func (s *server) downloadExport(c *gin.Context) {
	s.exportsMu.RLock()
	record, ok := s.exports[c.Param("id")]
	s.exportsMu.RUnlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "export not found"})
		return
	}

	data, err := s.deps.Artifacts.Get(c.Request.Context(), record.bucket, record.objectKey)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "text/csv", data)
}
