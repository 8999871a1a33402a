// Package handlers implements the HTTP API for Firewatch.
//
// Handlers translate between HTTP and the orchestration engine; they hold no
// business logic. Errors are pushed through c.Error() and rendered by the
// ErrorHandler middleware.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"firewatch.io/firewatch/internal/activity"
	"firewatch.io/firewatch/internal/cache"
	"firewatch.io/firewatch/internal/domain"
	"firewatch.io/firewatch/internal/orchestration"
	"firewatch.io/firewatch/internal/pkg/worker"
)

// Server implements all API handlers.
type Server struct {
	engine       *orchestration.Engine
	availability *cache.Cache
	failureLogs  *activity.MemoryFailureLogStore
	pools        *worker.Pools
	readyCheck   func(ctx context.Context) error
}

// ServerDeps holds all dependencies for creating a Server. Manual DI, no
// Wire/Dig.
type ServerDeps struct {
	Engine       *orchestration.Engine
	Availability *cache.Cache
	FailureLogs  *activity.MemoryFailureLogStore
	Pools        *worker.Pools

	// ReadyCheck probes the backing store; nil means always ready.
	ReadyCheck func(ctx context.Context) error
}

// NewServer creates a new Server with all dependencies.
func NewServer(deps ServerDeps) *Server {
	return &Server{
		engine:       deps.Engine,
		availability: deps.Availability,
		failureLogs:  deps.FailureLogs,
		pools:        deps.Pools,
		readyCheck:   deps.ReadyCheck,
	}
}

type createDisasterRequest struct {
	ID         string    `json:"id"`
	Location   string    `json:"location" binding:"required"`
	Severity   *int      `json:"severity" binding:"required"`
	ReportedAt time.Time `json:"reported_at"`
}

// CreateDisaster handles POST /disasters. The orchestration instance is
// durably recorded before the 202 response; execution continues
// asynchronously.
func (s *Server) CreateDisaster(c *gin.Context) {
	var req createDisasterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_REQUEST",
			"message": err.Error(),
		})
		return
	}

	reportedAt := req.ReportedAt
	if reportedAt.IsZero() {
		reportedAt = time.Now().UTC()
	}

	instanceID, err := s.engine.Start(c.Request.Context(), domain.DisasterEvent{
		ID:         req.ID,
		Location:   req.Location,
		Severity:   *req.Severity,
		ReportedAt: reportedAt,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"instance_id": instanceID})
}

// GetInstance handles GET /instances/:id.
func (s *Server) GetInstance(c *gin.Context) {
	view, err := s.engine.GetInstance(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// GetAvailability handles GET /availability/:region.
func (s *Server) GetAvailability(c *gin.Context) {
	avail, err := s.availability.Get(c.Request.Context(), c.Param("region"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, avail)
}

// InvalidateAvailability handles DELETE /admin/cache/:region.
func (s *Server) InvalidateAvailability(c *gin.Context) {
	s.availability.Invalidate(c.Param("region"))
	c.Status(http.StatusNoContent)
}

// ListFailureLogs handles GET /failure-logs.
func (s *Server) ListFailureLogs(c *gin.Context) {
	logs := s.failureLogs.All()
	if logs == nil {
		logs = []domain.EscalationFailureLog{}
	}
	c.JSON(http.StatusOK, gin.H{"failure_logs": logs})
}
