package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/lab-report-companion/internal/domain"
	"github.com/lab-report-companion/internal/history"
	"github.com/lab-report-companion/internal/middleware"
	"github.com/lab-report-companion/internal/service"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// Dependencies carries the collaborators the HTTP surface exposes.
type Dependencies struct {
	Analyzer   *service.AnalyzerService
	Processor  *service.ReportProcessor
	Reports    domain.ReportStore
	Identities domain.IdentityStore
	History    history.Store
}

// Server represents the HTTP server
type Server struct {
	configManager domain.ConfigManager
	logger        *logrus.Logger
	router        *gin.Engine
	server        *http.Server
	hub           *StatusHub

	analyzer   *service.AnalyzerService
	processor  *service.ReportProcessor
	reports    domain.ReportStore
	identities domain.IdentityStore
	history    history.Store
}

// NewServer creates a new HTTP server instance
func NewServer(configManager domain.ConfigManager, logger *logrus.Logger, deps Dependencies) *Server {
	cfg := configManager.GetConfig()

	// Set Gin mode based on environment
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.SecureHeaders())
	router.Use(middleware.RequestLogger(logger))
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	if cfg.RateLimit.Enabled {
		router.Use(middleware.NewRateLimiter(cfg.RateLimit).Middleware())
	}

	server := &Server{
		configManager: configManager,
		logger:        logger,
		router:        router,
		hub:           NewStatusHub(logger),
		analyzer:      deps.Analyzer,
		processor:     deps.Processor,
		reports:       deps.Reports,
		identities:    deps.Identities,
		history:       deps.History,
	}

	// Setup routes
	server.setupRoutes()

	return server
}

// StatusHub exposes the hub so the report processor can be wired to it.
func (s *Server) StatusHub() *StatusHub {
	return s.hub
}

// Router exposes the gin engine for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start starts the HTTP server and blocks until ctx is canceled, then
// shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.configManager.GetServerConfig()
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.router.GET("/health", s.handleHealth)

	// API v1 routes
	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/tests", s.handleListTests)
		v1.GET("/tests/:key", s.handleGetTest)
		v1.GET("/panels", s.handleListPanels)
		v1.POST("/analyze", s.handleAnalyze)
		v1.POST("/reports", s.handleSubmitReport)
		v1.GET("/reports/:id", s.handleGetReport)
		v1.GET("/reports/:id/events", s.handleReportEvents)
		v1.GET("/subjects/:subject/history", s.handleSubjectHistory)
		v1.GET("/subjects/:subject/reports", s.handleSubjectReports)
	}
}
