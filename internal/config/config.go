package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/lab-report-companion/internal/domain"
)

// Manager loads and serves the server configuration via Viper. Values come
// from an optional YAML file overlaid with LABREPORT_* environment
// variables.
type Manager struct {
	config     *domain.Config
	configFile string
}

// NewManager creates a configuration manager searching the default config
// paths.
func NewManager() (*Manager, error) {
	return NewManagerFromFile("")
}

// NewManagerFromFile creates a configuration manager reading an explicit
// config file. An empty path keeps the default search behavior; a named
// file that cannot be read is an error.
func NewManagerFromFile(path string) (*Manager, error) {
	m := &Manager{configFile: path}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

func (m *Manager) loadConfig() error {
	if m.configFile != "" {
		viper.SetConfigFile(m.configFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
		viper.AddConfigPath("/etc/lab-report-companion/")
	}

	viper.SetEnvPrefix("LABREPORT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	m.setDefaults()

	// A missing file is fine: defaults plus environment variables carry a
	// development setup. Anything else (unreadable, malformed) is fatal.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &domain.Config{}
	if err := viper.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.config = config
	return nil
}

func (m *Manager) setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "120s")
	viper.SetDefault("server.allowed_origins", []string{})

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.database", "lab_reports")
	viper.SetDefault("database.username", "postgres")
	viper.SetDefault("database.password", "")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "5m")
	viper.SetDefault("database.migrations_path", "migrations")

	// The full server shares the report database; the analyzer CLI
	// overrides this with SQLite.
	viper.SetDefault("history.driver", "postgres")
	viper.SetDefault("history.sqlite_path", "")
	viper.SetDefault("history.postgres_dsn", "")

	viper.SetDefault("extraction.ocr.base_url", "http://localhost:8884")
	viper.SetDefault("extraction.ocr.timeout", "30s")
	viper.SetDefault("extraction.ocr.rate_limit", 10)
	viper.SetDefault("extraction.ocr.retry_count", 3)

	viper.SetDefault("extraction.vision.base_url", "")
	viper.SetDefault("extraction.vision.model", "default")
	viper.SetDefault("extraction.vision.timeout", "60s")
	viper.SetDefault("extraction.vision.rate_limit", 5)
	viper.SetDefault("extraction.vision.retry_count", 3)

	viper.SetDefault("extraction.confidence_threshold", 0.5)
	viper.SetDefault("extraction.cache_ttl", "24h")

	viper.SetDefault("cache.redis_url", "redis://localhost:6379")
	viper.SetDefault("cache.default_ttl", "24h")
	viper.SetDefault("cache.max_retries", 3)
	viper.SetDefault("cache.pool_size", 10)
	viper.SetDefault("cache.pool_timeout", "4s")

	viper.SetDefault("processing.workers", 4)
	viper.SetDefault("processing.queue_size", 64)
	viper.SetDefault("processing.job_timeout", "2m")

	viper.SetDefault("rate_limit.enabled", true)
	viper.SetDefault("rate_limit.requests_per_second", 10.0)
	viper.SetDefault("rate_limit.burst", 20)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output", "stdout")
}

// GetConfig returns the complete configuration.
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetDatabaseConfig returns the report database configuration.
func (m *Manager) GetDatabaseConfig() *domain.DatabaseConfig {
	return &m.config.Database
}

// GetExtractionConfig returns the document extraction configuration.
func (m *Manager) GetExtractionConfig() *domain.ExtractionConfig {
	return &m.config.Extraction
}

// GetServerConfig returns the HTTP server configuration.
func (m *Manager) GetServerConfig() *domain.ServerConfig {
	return &m.config.Server
}

// Reload re-reads configuration from all sources.
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate checks the loaded configuration for values the server cannot
// start with.
func (m *Manager) Validate() error {
	if err := m.validateServer(); err != nil {
		return err
	}
	if err := m.validateStores(); err != nil {
		return err
	}
	if err := m.validateExtraction(); err != nil {
		return err
	}
	return m.validateRuntime()
}

func (m *Manager) validateServer() error {
	if port := m.config.Server.Port; port <= 0 || port > 65535 {
		return fmt.Errorf("invalid server port: %d", port)
	}
	return nil
}

func (m *Manager) validateStores() error {
	db := m.config.Database
	if db.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if db.Database == "" {
		return fmt.Errorf("database name is required")
	}
	if db.Username == "" {
		return fmt.Errorf("database username is required")
	}

	switch m.config.History.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("invalid history driver: %s", m.config.History.Driver)
	}
	if m.config.History.Driver == "sqlite" && m.config.History.SQLitePath == "" {
		return fmt.Errorf("history sqlite_path is required for the sqlite driver")
	}

	if m.config.Cache.RedisURL == "" {
		return fmt.Errorf("Redis URL is required")
	}
	return nil
}

func (m *Manager) validateExtraction() error {
	// The OCR backend is mandatory; the vision fallback is optional and
	// disabled when its URL is empty.
	ext := m.config.Extraction
	if ext.OCR.BaseURL == "" {
		return fmt.Errorf("OCR base URL is required")
	}
	if ext.ConfidenceThreshold < 0 || ext.ConfidenceThreshold > 1 {
		return fmt.Errorf("extraction confidence threshold must be within [0, 1]: %f", ext.ConfidenceThreshold)
	}
	return nil
}

func (m *Manager) validateRuntime() error {
	if m.config.Processing.Workers <= 0 {
		return fmt.Errorf("processing workers must be positive: %d", m.config.Processing.Workers)
	}
	if m.config.Processing.QueueSize <= 0 {
		return fmt.Errorf("processing queue size must be positive: %d", m.config.Processing.QueueSize)
	}

	if rl := m.config.RateLimit; rl.Enabled {
		if rl.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate limit requests per second must be positive: %f", rl.RequestsPerSecond)
		}
		if rl.Burst <= 0 {
			return fmt.Errorf("rate limit burst must be positive: %d", rl.Burst)
		}
	}

	switch strings.ToLower(m.config.Logging.Level) {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return fmt.Errorf("invalid log level: %s", m.config.Logging.Level)
	}
	return nil
}

// GetDatabaseConnectionString returns a keyword/value connection string for
// the report database.
func (m *Manager) GetDatabaseConnectionString() string {
	db := m.config.Database
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		db.Host, db.Port, db.Username, db.Password, db.Database, db.SSLMode)
}

// GetDatabaseURL returns the database connection URL used by the migration
// runner and the history store's postgres driver.
func (m *Manager) GetDatabaseURL() string {
	db := m.config.Database
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		db.Username, db.Password, db.Host, db.Port, db.Database, db.SSLMode)
}

// GetRedisConnectionString returns the Redis connection string.
func (m *Manager) GetRedisConnectionString() string {
	return m.config.Cache.RedisURL
}

// IsProduction reports whether the process runs in production mode.
func (m *Manager) IsProduction() bool {
	return strings.ToLower(viper.GetString("environment")) == "production"
}

// IsDevelopment reports whether the process runs in development mode.
// An unset environment counts as development.
func (m *Manager) IsDevelopment() bool {
	env := strings.ToLower(viper.GetString("environment"))
	return env == "development" || env == "dev" || env == ""
}
