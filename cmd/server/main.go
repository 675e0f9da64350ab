package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/lab-report-companion/internal/api"
	"github.com/lab-report-companion/internal/catalog"
	"github.com/lab-report-companion/internal/config"
	"github.com/lab-report-companion/internal/database"
	"github.com/lab-report-companion/internal/domain"
	"github.com/lab-report-companion/internal/history"
	"github.com/lab-report-companion/internal/repository"
	"github.com/lab-report-companion/internal/service"
	"github.com/lab-report-companion/pkg/external"
)

func main() {
	configFile := flag.String("config", "", "path to the config file (default: search ./config.yaml and /etc/lab-report-companion/)")
	flag.Parse()

	// Load configuration
	configManager, err := config.NewManagerFromFile(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()
	logger := newLogger(cfg.Logging)

	logger.WithFields(logrus.Fields{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Starting lab report companion server")

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	// Bring the report schema up to date before opening the pool
	if err := database.Migrate(configManager.GetDatabaseURL(), cfg.Database.MigrationsPath, logger); err != nil {
		logger.WithError(err).Fatal("Database migration failed")
	}

	// Report store
	db, err := database.NewConnection(ctx, &cfg.Database, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to report database")
	}
	defer db.Close()

	reports := repository.NewReportRepository(db.Pool, logger)

	// Result history store for trend tracking
	historyStore, err := newHistoryStore(configManager, cfg)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open history store")
	}
	defer historyStore.Close()

	// Document extraction backends. The Redis tier is optional: when the
	// cache is unreachable the extractor still runs with its in-memory tier.
	var extractionCache *external.ExtractionCache
	if cache, err := external.NewExtractionCache(cfg.Cache); err != nil {
		logger.WithError(err).Warn("Extraction cache unavailable, continuing without Redis tier")
	} else {
		extractionCache = cache
	}

	extractor, err := external.NewResilientExtractor(&cfg.Extraction, extractionCache, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create document extractor")
	}
	defer extractor.Close()

	// Analysis pipeline
	identities := catalog.New(logger)
	analyzer := service.NewAnalyzerService(logger, identities, historyStore, extractor)
	processor := service.NewReportProcessor(logger, analyzer, reports, cfg.Processing)

	// HTTP server
	server := api.NewServer(configManager, logger, api.Dependencies{
		Analyzer:   analyzer,
		Processor:  processor,
		Reports:    reports,
		Identities: identities,
		History:    historyStore,
	})
	processor.SetStatusListener(server.StatusHub())

	processor.Start(ctx)
	defer processor.Stop()

	// Start server
	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Server failed")
	}

	logger.Info("Server stopped")
}

// newLogger builds the process logger from configuration.
func newLogger(cfg domain.LoggingConfig) *logrus.Logger {
	logger := logrus.New()

	if level, err := logrus.ParseLevel(cfg.Level); err == nil {
		logger.SetLevel(level)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}

	if cfg.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	if cfg.Output == "stderr" {
		logger.SetOutput(os.Stderr)
	}

	return logger
}

// newHistoryStore opens the configured result history backend. The postgres
// driver shares the report database server unless a dedicated DSN is set.
func newHistoryStore(configManager *config.Manager, cfg *domain.Config) (history.Store, error) {
	switch cfg.History.Driver {
	case "sqlite":
		return history.NewSQLiteStore(cfg.History.SQLitePath)
	default:
		dsn := cfg.History.PostgresDSN
		if dsn == "" {
			dsn = configManager.GetDatabaseURL()
		}
		return history.NewPostgresStoreFromURL(dsn)
	}
}
