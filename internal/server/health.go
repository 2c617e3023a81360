package server

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kode4food/flowrun"
	"github.com/kode4food/flowrun/pkg/api"
	"github.com/kode4food/flowrun/pkg/log"
)

const (
	healthHealthy   = "healthy"
	healthUnhealthy = "unhealthy"
)

func (s *Server) handleHealth(c *gin.Context) {
	if err := s.engine.Health(c.Request.Context()); err != nil {
		slog.Warn("Health check failed",
			log.Error(err))
		c.JSON(http.StatusServiceUnavailable, api.HealthResponse{
			Service: flowrun.Name,
			Status:  healthUnhealthy,
			Error:   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, api.HealthResponse{
		Service: flowrun.Name,
		Status:  healthHealthy,
	})
}

func (s *Server) listTasks(c *gin.Context) {
	tasks := s.engine.Tasks()
	c.JSON(http.StatusOK, api.TasksListResponse{
		Tasks: tasks,
		Count: len(tasks),
	})
}
