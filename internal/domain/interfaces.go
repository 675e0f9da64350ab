package domain

import (
	"context"
)

// Extractor recovers analyzable content from an uploaded report document.
// Implementations wrap OCR or vision-model backends; the analysis pipeline
// only sees the Extraction.
type Extractor interface {
	Extract(ctx context.Context, doc *Document) (*Extraction, error)
}

// IdentityStore resolves free-text test names to canonical identities and
// serves catalog listings. Lookups are read-only and safe for concurrent use.
type IdentityStore interface {
	ResolveAlias(name string) (*TestIdentity, bool)
	GetTest(key TestKey) (*TestIdentity, error)
	ListTests() []TestIdentity
	ListPanels() []Panel
}

// ReportStore persists asynchronously processed report records.
type ReportStore interface {
	CreateReport(ctx context.Context, report *Report) error
	GetReport(ctx context.Context, id string) (*Report, error)
	UpdateStatus(ctx context.Context, id string, status ReportStatus, errMsg string) error
	SaveAnalysis(ctx context.Context, id string, analysis *ReportAnalysis) error
	ListBySubject(ctx context.Context, subject string, limit int) ([]*Report, error)
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetServerConfig() *ServerConfig
	GetDatabaseConfig() *DatabaseConfig
	GetExtractionConfig() *ExtractionConfig
	Reload() error
	Validate() error
	GetDatabaseConnectionString() string
	GetRedisConnectionString() string
	IsProduction() bool
	IsDevelopment() bool
}
