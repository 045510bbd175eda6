package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"koinonia.app/notifier/internal/pkg/logger"
	"koinonia.app/notifier/internal/pkg/worker"
)

// Health is the probe response body.
type Health struct {
	Status string             `json:"status"`
	Checks map[string]string  `json:"checks,omitempty"`
	Pools  []worker.PoolStats `json:"pools,omitempty"`
}

// poolStats is implemented by worker.Pools.
type poolStats interface {
	Stats() []worker.PoolStats
}

const (
	healthStatusOK       = "ok"
	healthStatusDegraded = "degraded"
)

// GetLiveness handles GET /health/live.
func (s *Server) GetLiveness(c *gin.Context) {
	c.JSON(http.StatusOK, Health{Status: healthStatusOK})
}

// GetReadiness handles GET /health/ready.
func (s *Server) GetReadiness(c *gin.Context) {
	checks := make(map[string]string)
	allHealthy := true

	if s.store == nil {
		checks["firestore"] = "unconfigured"
		allHealthy = false
	} else if err := s.store.Ping(c.Request.Context()); err != nil {
		logger.Warn("Readiness check failed", zap.String("check", "firestore"), zap.Error(err))
		checks["firestore"] = "error"
		allHealthy = false
	} else {
		checks["firestore"] = "ok"
	}

	status := healthStatusOK
	httpStatus := http.StatusOK
	if !allHealthy {
		status = healthStatusDegraded
		httpStatus = http.StatusServiceUnavailable
	}

	resp := Health{
		Status: status,
		Checks: checks,
	}
	if stats, ok := s.pools.(poolStats); ok {
		resp.Pools = stats.Stats()
	}
	c.JSON(httpStatus, resp)
}
