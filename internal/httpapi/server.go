package httpapi

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
)

// NewRouter builds the gin engine and registers every route of the
// ingress surface. The returned engine has no listener attached; the
// caller (cmd/ai-assignment-checker) wraps it in an *http.Server for
// graceful shutdown.
func NewRouter(deps Deps) *gin.Engine {
	r := gin.Default()

	s := &server{deps: deps, exports: make(map[string]exportRecord)}

	r.GET("/health", s.health)
	r.GET("/ready", s.ready)

	r.POST("/candidates", s.createCandidate)
	r.POST("/assignments", s.createAssignment)
	r.GET("/assignments", s.listAssignments)

	r.POST("/submissions", s.createSubmission)
	r.POST("/submissions/file", s.createSubmissionFromFile)
	r.GET("/submissions/:id", s.getSubmission)

	r.POST("/webhooks/telegram", s.telegramWebhook)

	r.GET("/feedback", s.getFeedback)
	r.POST("/exports", s.createExport)
	r.GET("/exports/:id/download", s.downloadExport)

	return r
}

type server struct {
	deps Deps

	// exports tracks export jobs in process memory. Export content itself
	// lives in deps.Artifacts (content-addressed); this map is only the
	// export-id -> object-key index, which has no durable table of its own
	// — see DESIGN.md.
	exportsMu sync.RWMutex
	exports   map[string]exportRecord
}

type exportRecord struct {
	bucket    string
	objectKey string
}

// health handles GET /health: process liveness only, no dependency checks.
func (s *server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ready handles GET /ready: exposes the worker runner counters for every
// role wired into this process. An api-only process reports an empty
// workers map, which is itself meaningful (no worker loop to be ready).
func (s *server) ready(c *gin.Context) {
	workers := make(gin.H, len(s.deps.Runners))
	ready := true
	for role, runner := range s.deps.Runners {
		snap := runner.Snapshot()
		workers[role] = snap
		if !snap.WorkerLoopReady {
			ready = false
		}
	}

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"status": readyStatus(ready), "workers": workers})
}

func readyStatus(ready bool) string {
	if ready {
		return "ready"
	}
	return "not_ready"
}
