package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
)

// createAssignment handles POST /assignments.
func (s *server) createAssignment(c *gin.Context) {
	var req CreateAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rubric, err := json.Marshal(req.Rubric)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "rubric must be JSON-serializable"})
		return
	}

	assignment, err := s.deps.Repo.CreateAssignment(c.Request.Context(), req.Title, rubric)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, assignment)
}

// listAssignments handles GET /assignments.
func (s *server) listAssignments(c *gin.Context) {
	assignments, err := s.deps.Repo.ListAssignments(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, assignments)
}
