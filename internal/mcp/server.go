// Package mcp exposes the lab report analysis pipeline over the Model
// Context Protocol so assistant clients can call it as a set of tools.
// The server is self-contained: history persists to SQLite and repeated
// analyses are answered from an in-memory cache.
package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/lab-report-companion/internal/cache"
	"github.com/lab-report-companion/internal/catalog"
	"github.com/lab-report-companion/internal/config"
	"github.com/lab-report-companion/internal/domain"
	"github.com/lab-report-companion/internal/history"
	"github.com/lab-report-companion/internal/service"
)

const (
	serverName    = "lab-report-companion"
	serverVersion = "v0.1.0"
)

// LabServer serves the analysis pipeline over MCP stdio.
type LabServer struct {
	config     *config.LiteConfig
	mcpServer  *mcp.Server
	analyzer   *service.AnalyzerService
	identities domain.IdentityStore
	cache      *cache.AnalysisCache
	history    history.Store
	logger     *logrus.Logger
}

// LabServerOption is a functional option for LabServer.
type LabServerOption func(*LabServer) error

// WithLogger sets a custom logger.
func WithLogger(logger *logrus.Logger) LabServerOption {
	return func(s *LabServer) error {
		s.logger = logger
		return nil
	}
}

// WithHistoryStore sets a custom history store.
func WithHistoryStore(store history.Store) LabServerOption {
	return func(s *LabServer) error {
		s.history = store
		return nil
	}
}

// NewLabServer creates a new MCP server instance. It requires no external
// services: the default history store is SQLite under the data directory.
func NewLabServer(cfg *config.LiteConfig, opts ...LabServerOption) (*LabServer, error) {
	server := &LabServer{
		config: cfg,
		logger: logrus.New(),
	}

	// Configure default logger
	if cfg.LogFormat == "text" {
		server.logger.SetFormatter(&logrus.TextFormatter{})
	} else {
		server.logger.SetFormatter(&logrus.JSONFormatter{})
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		server.logger.SetLevel(level)
	} else {
		server.logger.SetLevel(logrus.InfoLevel)
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(server); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	// Ensure data directory exists
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	server.cache = cache.New(cfg.CacheMaxItems, cfg.CacheTTL)

	// Initialize history store if not provided
	if server.history == nil {
		store, err := history.NewSQLiteStore(cfg.HistoryDBPath())
		if err != nil {
			return nil, fmt.Errorf("failed to open history store: %w", err)
		}
		server.history = store
	}

	server.identities = catalog.New(server.logger)
	server.analyzer = service.NewAnalyzerService(server.logger, server.identities, server.history, nil)

	server.mcpServer = mcp.NewServer(&mcp.Implementation{
		Name:    serverName,
		Version: serverVersion,
	}, nil)

	server.registerTools()

	server.logger.Info("MCP server initialized")
	return server, nil
}

// registerTools declares every tool this server answers.
func (s *LabServer) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name: "analyze_lab_text",
		Description: "Analyze raw lab report text: parse test results, classify each value " +
			"against reference ranges personalized by gender and age, and return status, " +
			"trend, and guidance per result. Pass a subject identifier to record results " +
			"for trend tracking across reports.",
	}, s.handleAnalyzeLabText)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name: "lookup_test",
		Description: "Look up a supported lab test by name or alias and return its " +
			"canonical key, panel, unit, default reference range, and known aliases.",
	}, s.handleLookupTest)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_supported_tests",
		Description: "List every lab test the analyzer supports, grouped by panel.",
	}, s.handleListSupportedTests)

	s.logger.WithField("tool_count", 3).Info("Registered MCP tools")
}

// Run serves MCP over stdio until the context is canceled or the client
// disconnects.
func (s *LabServer) Run(ctx context.Context) error {
	s.logger.WithFields(logrus.Fields{
		"server":  serverName,
		"version": serverVersion,
	}).Info("Starting MCP server on stdio")

	if err := s.mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}

// Close releases the history store.
func (s *LabServer) Close() error {
	if s.history != nil {
		if err := s.history.Close(); err != nil {
			return fmt.Errorf("failed to close history store: %w", err)
		}
	}
	return nil
}

// GetCache returns the analysis cache for external access.
func (s *LabServer) GetCache() *cache.AnalysisCache {
	return s.cache
}

// GetHistoryStore returns the history store for external access.
func (s *LabServer) GetHistoryStore() history.Store {
	return s.history
}
