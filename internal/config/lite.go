// Lightweight configuration for standalone operation: the analyzer CLI and
// the stdio MCP server read everything from LABREPORT_* environment
// variables so they start without any config file or database server.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// LiteConfig configures the standalone binaries.
type LiteConfig struct {
	DataDir string // base directory for the SQLite history and exports

	CacheMaxItems int
	CacheTTL      time.Duration

	LogLevel  string // debug, info, warn, error
	LogFormat string // json, text
}

// DefaultLiteConfig returns the standalone defaults. Data lives under
// ~/.lab-report-companion.
func DefaultLiteConfig() *LiteConfig {
	homeDir, _ := os.UserHomeDir()

	return &LiteConfig{
		DataDir:       filepath.Join(homeDir, ".lab-report-companion"),
		CacheMaxItems: 1000,
		CacheTTL:      24 * time.Hour,
		LogLevel:      "info",
		LogFormat:     "json",
	}
}

// LoadLiteConfig reads LABREPORT_* environment variables over the defaults.
// Unparseable values keep the default rather than failing startup.
func LoadLiteConfig() *LiteConfig {
	cfg := DefaultLiteConfig()

	envString("LABREPORT_DATA_DIR", &cfg.DataDir)
	envPositiveInt("LABREPORT_CACHE_MAX_ITEMS", &cfg.CacheMaxItems)
	envDuration("LABREPORT_CACHE_TTL", &cfg.CacheTTL)
	envString("LABREPORT_LOG_LEVEL", &cfg.LogLevel)
	envString("LABREPORT_LOG_FORMAT", &cfg.LogFormat)

	return cfg
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envPositiveInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			*dst = n
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// HistoryDBPath returns the path of the result history SQLite database.
func (c *LiteConfig) HistoryDBPath() string {
	return filepath.Join(c.DataDir, "history.db")
}

// ExportDir returns the directory JSON history exports are written to.
func (c *LiteConfig) ExportDir() string {
	return filepath.Join(c.DataDir, "exports")
}

// EnsureDataDir creates the data and export directories if missing.
func (c *LiteConfig) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0o755); err != nil {
		return err
	}
	return os.MkdirAll(c.ExportDir(), 0o755)
}
