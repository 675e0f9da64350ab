// Package main provides the standalone analyzer CLI: lab report text in,
// analysis JSON out. It needs no external services; trend tracking uses a
// local SQLite database when a subject is named.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/lab-report-companion/internal/catalog"
	"github.com/lab-report-companion/internal/config"
	"github.com/lab-report-companion/internal/domain"
	"github.com/lab-report-companion/internal/history"
	"github.com/lab-report-companion/internal/service"
)

func main() {
	var (
		subject     = flag.String("subject", "", "subject identifier; enables history recording and trends")
		gender      = flag.String("gender", "", "subject gender (male/female) for personalized ranges")
		age         = flag.Int("age", -1, "subject age in years for personalized ranges")
		historyPath = flag.String("history", "", "SQLite history database path (defaults to the data directory when -subject is set)")
		logLevel    = flag.String("log-level", "error", "log level: debug, info, warn, error")
	)
	flag.Usage = usage
	flag.Parse()

	text, err := readInput(flag.Arg(0))
	if err != nil {
		fatalf("reading input: %v", err)
	}

	logger := newLogger(*logLevel)

	demo := domain.Demographics{}
	if *gender != "" {
		demo.Gender = domain.ParseGender(*gender)
	}
	if *age >= 0 {
		demo.Age = age
	}

	var store history.Store
	if path := historyDBPath(*historyPath, *subject); path != "" {
		sqliteStore, err := history.NewSQLiteStore(path)
		if err != nil {
			fatalf("opening history store: %v", err)
		}
		defer sqliteStore.Close()
		store = sqliteStore
	}

	identities := catalog.New(logger)
	analyzer := service.NewAnalyzerService(logger, identities, store, nil)

	resp, err := analyzer.Analyze(context.Background(), &domain.AnalyzeRequest{
		Text:         text,
		Subject:      *subject,
		Demographics: demo,
	})
	if err != nil {
		fatalf("analysis failed: %v", err)
	}

	out, err := json.MarshalIndent(resp.Analysis, "", "  ")
	if err != nil {
		fatalf("encoding analysis: %v", err)
	}
	fmt.Println(string(out))
}

func usage() {
	fmt.Fprint(os.Stderr, `Usage: analyzer [flags] [file]

Analyze lab report text and print the analysis as JSON. Text is read from
the file argument, or from stdin when no argument is given.

Flags:
`)
	flag.PrintDefaults()
}

// readInput loads report text from the file argument, or stdin when the
// argument is empty or "-".
func readInput(path string) (string, error) {
	if path == "" || path == "-" {
		data, err := io.ReadAll(os.Stdin)
		return string(data), err
	}
	data, err := os.ReadFile(path)
	return string(data), err
}

// historyDBPath resolves the SQLite path for trend tracking. An explicit
// flag wins; otherwise a named subject keeps history under the data
// directory, and anonymous analyses keep none.
func historyDBPath(flagPath, subject string) string {
	if flagPath != "" {
		return flagPath
	}
	if subject == "" {
		return ""
	}

	cfg := config.LoadLiteConfig()
	if err := cfg.EnsureDataDir(); err != nil {
		fatalf("creating data directory: %v", err)
	}
	return cfg.HistoryDBPath()
}

// newLogger builds a stderr logger so JSON output on stdout stays clean.
func newLogger(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{})

	if parsed, err := logrus.ParseLevel(level); err == nil {
		logger.SetLevel(parsed)
	} else {
		logger.SetLevel(logrus.ErrorLevel)
	}
	return logger
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "analyzer: "+format+"\n", args...)
	os.Exit(1)
}
