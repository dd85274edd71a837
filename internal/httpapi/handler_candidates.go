package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// createCandidate handles POST /candidates.
func (s *server) createCandidate(c *gin.Context) {
	var req CreateCandidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	candidate, err := s.deps.Repo.CreateCandidate(c.Request.Context(), req.FullName, req.Email)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, candidate)
}
