package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/artzaitsev/ai-assignment-checker/internal/model"
	"github.com/artzaitsev/ai-assignment-checker/internal/repository"
	"github.com/artzaitsev/ai-assignment-checker/internal/stages"
)

const telegramSourceType = "telegram_webhook"

// telegramWebhook handles POST /webhooks/telegram?assignment_id=asg_...
//
// Idempotent by update_id: Telegram retries undelivered webhook responses,
// so a repeated update_id must resolve to the same submission rather than
// creating a second one.
func (s *server) telegramWebhook(c *gin.Context) {
	assignmentPublicID := c.Query("assignment_id")
	if assignmentPublicID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "assignment_id query parameter is required"})
		return
	}

	var update telegramUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	updateIDStr := strconv.FormatInt(update.UpdateID, 10)

	existing, err := s.deps.Repo.FindSubmissionBySource(ctx, telegramSourceType, updateIDStr)
	if err == nil {
		c.JSON(http.StatusOK, existing)
		return
	}
	if !errors.Is(err, repository.ErrNotFound) {
		writeError(c, err)
		return
	}

	assignment, err := s.deps.Repo.GetAssignmentByPublicID(ctx, assignmentPublicID)
	if err != nil {
		writeError(c, err)
		return
	}

	fallbackName := strings.TrimSpace(update.Message.From.FirstName + " " + update.Message.From.LastName)
	chatID := strconv.FormatInt(update.Message.Chat.ID, 10)
	candidate, err := s.deps.Repo.UpsertCandidateSource(ctx, "telegram", chatID, fallbackName)
	if err != nil {
		writeError(c, err)
		return
	}

	submission, err := s.deps.Repo.CreateSubmission(ctx, candidate.ID, assignment.ID, model.StatusTelegramUpdateReceived)
	if err != nil {
		writeError(c, err)
		return
	}

	if err := s.deps.Repo.LinkSubmissionSource(ctx, submission.ID, telegramSourceType, updateIDStr); err != nil {
		writeError(c, fmt.Errorf("linking submission source: %w", err))
		return
	}

	if err := s.writeIntakeArtifact(ctx, submission.PublicID, stages.IntakePayload{
		TelegramFileID: update.Message.Document.FileID,
		RawFilename:    update.Message.Document.FileName,
	}); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, submission)
}
