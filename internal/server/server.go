// Package server exposes the diagnostics and admin HTTP surface: registry
// reads, audit and telemetry queries, policy patches, and operator frame
// injection.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/GriffinCanCode/AgentOS/agentsys/internal/infrastructure/logging"
)

// Config holds the HTTP listener settings.
type Config struct {
	Host              string
	Port              int
	RequestsPerSecond int
	Burst             int
}

// Server wraps the gin router and its HTTP listener.
type Server struct {
	router *gin.Engine
	http   *http.Server
	logger *logging.Logger
}

// New builds the router with all routes and middleware registered.
func New(cfg Config, handlers *Handlers, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLog(logger))
	router.Use(CORS())
	router.Use(RateLimit(RateLimitConfig{
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
	}))

	router.GET("/", handlers.Root)
	router.GET("/health", handlers.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/agents", handlers.ListAgents)
	router.POST("/agents", handlers.SpawnAgent)
	router.GET("/agents/:id", handlers.GetAgent)
	router.DELETE("/agents/:id", handlers.TerminateAgent)
	router.POST("/agents/:id/policy", handlers.PatchPolicy)
	router.POST("/agents/:id/resume", handlers.ResumeAgent)
	router.GET("/agents/:id/links", handlers.AgentLinks)
	router.POST("/agents/:id/links", handlers.LinkAgent)

	router.GET("/audit/recent", handlers.RecentAudit)
	router.GET("/audit/export", handlers.ExportAudit)
	router.GET("/operations/total", handlers.TotalOperations)
	router.GET("/telemetry", handlers.Telemetry)
	router.GET("/compliance/report", handlers.ComplianceReport)

	router.GET("/reviews", handlers.PendingReviews)
	router.POST("/reviews/:id/resolve", handlers.ResolveReview)

	router.POST("/frames", handlers.InjectFrame)
	router.GET("/events", handlers.Events)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	return &Server{
		router: router,
		http: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Router exposes the handler tree, for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Run serves until the listener fails or Shutdown is called.
func (s *Server) Run() error {
	s.logger.Info("http server listening")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
