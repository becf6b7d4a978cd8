package status

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/conservacam/fieldcam/inference"
	"github.com/conservacam/fieldcam/logging"
	"github.com/conservacam/fieldcam/session"
)

const (
	DefaultJobLimit = 20
	MaxJobLimit     = 200
)

// SessionSource exposes the live capture session.
type SessionSource interface {
	Snapshot() session.State
}

// StatusHandler serves read-only station status
type StatusHandler struct {
	logger   logging.Logger
	sessions SessionSource
	jobs     inference.JobLister
	every    int
}

// NewStatusHandler creates a new status handler. jobs may be nil when the
// station runs without a state database.
func NewStatusHandler(logger logging.Logger, sessions SessionSource, jobs inference.JobLister, dispatchEvery int) *StatusHandler {
	return &StatusHandler{
		logger:   logging.OrNop(logger),
		sessions: sessions,
		jobs:     jobs,
		every:    dispatchEvery,
	}
}

// SessionResponse represents the session status response
type SessionResponse struct {
	session.State
	DispatchEvery     int `json:"dispatch_every"`
	UntilNextDispatch int `json:"until_next_dispatch"`
}

// GetSession handles GET /api/session
func (h *StatusHandler) GetSession(c *gin.Context) {
	state := h.sessions.Snapshot()

	response := SessionResponse{State: state, DispatchEvery: h.every}
	if h.every > 0 {
		response.UntilNextDispatch = h.every - state.Count%h.every
	}

	c.JSON(http.StatusOK, response)
}

// ListJobs handles GET /api/jobs?limit=N
func (h *StatusHandler) ListJobs(c *gin.Context) {
	if h.jobs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Job history is disabled"})
		return
	}

	limit := DefaultJobLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(parsed, MaxJobLimit)
	}

	jobs, err := h.jobs.ListRecentJobs(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list inference jobs", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}
