package server

import (
	"log/slog"
	"net/http"
	"sync"

	glog "github.com/gin-contrib/slog"
	"github.com/gin-gonic/gin"

	"github.com/kode4food/flowrun/internal/engine"
	"github.com/kode4food/flowrun/internal/events"
	"github.com/kode4food/flowrun/internal/metrics"
)

// Server implements the HTTP API for the flow engine
type Server struct {
	engine  *engine.Engine
	hub     *events.Hub
	metrics *metrics.Metrics
	sockets map[*Client]struct{}
	mu      sync.Mutex
}

// NewServer creates a new HTTP API server. The hub and metrics are
// optional; without them /events and /metrics respond 404
func NewServer(
	eng *engine.Engine, hub *events.Hub, met *metrics.Metrics,
) *Server {
	return &Server{
		engine:  eng,
		hub:     hub,
		metrics: met,
		sockets: map[*Client]struct{}{},
	}
}

// SetupRoutes configures and returns the HTTP router with all API endpoints
func (s *Server) SetupRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(glog.SetLogger(
		glog.WithLogger(func(_ *gin.Context, _ *slog.Logger) *slog.Logger {
			return slog.Default()
		}),
	))

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set(
			"Access-Control-Allow-Methods", "GET, POST, OPTIONS",
		)
		c.Writer.Header().Set(
			"Access-Control-Allow-Headers",
			"Content-Type, Authorization",
		)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	})

	router.GET("/health", s.handleHealth)
	router.GET("/tasks", s.listTasks)

	flows := router.Group("/flows")
	{
		flows.GET("", s.listFlowRuns)
		flows.POST("/run", s.runFlow)
		flows.GET("/:flowRunID", s.getFlowRun)
	}
	router.POST("/run-flow", s.runFlow)

	if s.metrics != nil {
		router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}
	if s.hub != nil {
		router.GET("/events", s.handleWebSocket)
	}

	return router
}

func (s *Server) registerWebSocket(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sockets[c] = struct{}{}
}

func (s *Server) unregisterWebSocket(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sockets, c)
}

// CloseWebSockets closes all active WebSocket connections
func (s *Server) CloseWebSockets() {
	s.mu.Lock()
	conns := make([]*Client, 0, len(s.sockets))
	for c := range s.sockets {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}
