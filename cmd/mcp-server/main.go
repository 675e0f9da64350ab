// Package main provides the MCP server entry point. The server is
// self-contained: it requires no external databases and keeps result
// history in SQLite under the data directory.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/lab-report-companion/internal/config"
	"github.com/lab-report-companion/internal/history"
	"github.com/lab-report-companion/internal/mcp"
	"github.com/lab-report-companion/internal/setup"
)

func main() {
	// Check for setup subcommand before flag parsing
	if len(os.Args) > 1 && os.Args[1] == "setup" {
		cli := setup.NewCLI()
		if err := cli.Run(os.Args[2:]); err != nil {
			log.Fatalf("Setup failed: %v", err)
		}
		return
	}

	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error (overrides LABREPORT_LOG_LEVEL)")
	historyPath := flag.String("history", "", "SQLite history database path (overrides the data directory default)")
	flag.Parse()

	// Load lightweight configuration
	cfg := config.LoadLiteConfig()
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	log.Printf("Starting lab report companion MCP server (data dir %s)", cfg.DataDir)

	var opts []mcp.LabServerOption
	if *historyPath != "" {
		store, err := history.NewSQLiteStore(*historyPath)
		if err != nil {
			log.Fatalf("Failed to open history store: %v", err)
		}
		opts = append(opts, mcp.WithHistoryStore(store))
	}

	// Create MCP server
	server, err := mcp.NewLabServer(cfg, opts...)
	if err != nil {
		log.Fatalf("Failed to create MCP server: %v", err)
	}
	defer server.Close()

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Println("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	// Serve MCP over stdio
	if err := server.Run(ctx); err != nil {
		log.Fatalf("MCP server failed: %v", err)
	}

	log.Println("MCP server stopped")
}
