// Package history stores classified lab results per subject so later
// analyses can compare a new value against the most recent prior one.
package history

import (
	"context"
	"io"
	"time"

	"github.com/lab-report-companion/internal/domain"
)

// Result is one recorded lab result for a subject. Rows are append-only;
// a subject's results for the same test form a time series keyed by
// RecordedAt.
type Result struct {
	ID         int64          `json:"id,omitempty"`
	Subject    string         `json:"subject"`
	Test       domain.TestKey `json:"test"`
	Value      float64        `json:"value"`
	Unit       string         `json:"unit,omitempty"`
	Status     domain.Status  `json:"status"`
	ReportID   string         `json:"report_id,omitempty"` // Originating report, if any
	RecordedAt time.Time      `json:"recorded_at"`
}

// Store defines the interface for result history storage.
type Store interface {
	// Record appends a classified result. RecordedAt defaults to now
	// when zero. Never updates existing rows.
	Record(ctx context.Context, result *Result) error

	// Previous returns the most recent recorded result for the subject
	// and test, or nil when the subject has no history for it.
	Previous(ctx context.Context, subject string, test domain.TestKey) (*Result, error)

	// ListBySubject returns a subject's results, newest first, with
	// pagination.
	ListBySubject(ctx context.Context, subject string, limit, offset int) ([]*Result, error)

	// Count returns the total number of recorded results.
	Count(ctx context.Context) (int64, error)

	// Delete removes a recorded result by ID.
	Delete(ctx context.Context, id int64) error

	// ExportJSON exports all recorded results to a JSON writer.
	ExportJSON(ctx context.Context, writer io.Writer) error

	// ImportJSON imports results from a JSON reader. Entries matching an
	// existing (subject, test, recorded_at) row are skipped.
	// Returns the number of imported and skipped entries.
	ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error)

	// Close closes the store and releases resources.
	Close() error
}

// ResultExport represents the JSON export format.
type ResultExport struct {
	Version    string    `json:"version"`
	ExportedAt time.Time `json:"exported_at"`
	Count      int       `json:"count"`
	Results    []*Result `json:"results"`
}
