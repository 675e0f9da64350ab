package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"time"

	_ "github.com/lib/pq"

	"github.com/lab-report-companion/internal/domain"
)

// PostgresStore implements the Store interface using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL result history store.
// It expects the database and schema to already exist (created via migrations).
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	// Verify connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromURL creates a new PostgreSQL result history store from
// a connection URL.
func NewPostgresStoreFromURL(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	store, err := NewPostgresStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// Record appends a classified result.
func (s *PostgresStore) Record(ctx context.Context, result *Result) error {
	if result.RecordedAt.IsZero() {
		result.RecordedAt = time.Now()
	}

	query := `
		INSERT INTO lab_results (
			subject, test_key, value, unit, status, report_id, recorded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	err := s.db.QueryRowContext(ctx, query,
		result.Subject,
		string(result.Test),
		result.Value,
		result.Unit,
		string(result.Status),
		result.ReportID,
		result.RecordedAt,
	).Scan(&result.ID)

	if err != nil {
		return fmt.Errorf("failed to record result: %w", err)
	}

	return nil
}

// Previous returns the most recent recorded result for the subject and test.
func (s *PostgresStore) Previous(ctx context.Context, subject string, test domain.TestKey) (*Result, error) {
	query := `
		SELECT id, subject, test_key, value, unit, status, report_id, recorded_at
		FROM lab_results
		WHERE subject = $1 AND test_key = $2
		ORDER BY recorded_at DESC, id DESC
		LIMIT 1
	`

	r := &Result{}
	var testKey, status string

	err := s.db.QueryRowContext(ctx, query, subject, string(test)).Scan(
		&r.ID, &r.Subject, &testKey, &r.Value, &r.Unit,
		&status, &r.ReportID, &r.RecordedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get previous result: %w", err)
	}

	r.Test = domain.TestKey(testKey)
	r.Status = domain.Status(status)
	return r, nil
}

// ListBySubject returns a subject's results, newest first, with pagination.
func (s *PostgresStore) ListBySubject(ctx context.Context, subject string, limit, offset int) ([]*Result, error) {
	query := `
		SELECT id, subject, test_key, value, unit, status, report_id, recorded_at
		FROM lab_results
		WHERE subject = $1
		ORDER BY recorded_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := s.db.QueryContext(ctx, query, subject, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	defer rows.Close()

	var result []*Result
	for rows.Next() {
		r := &Result{}
		var testKey, status string

		err := rows.Scan(
			&r.ID, &r.Subject, &testKey, &r.Value, &r.Unit,
			&status, &r.ReportID, &r.RecordedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		r.Test = domain.TestKey(testKey)
		r.Status = domain.Status(status)
		result = append(result, r)
	}

	return result, rows.Err()
}

// Count returns the total number of recorded results.
func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM lab_results").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count results: %w", err)
	}
	return count, nil
}

// Delete removes a recorded result by ID.
func (s *PostgresStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM lab_results WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete result: %w", err)
	}
	return nil
}

// maxExportLimit is the maximum number of entries to export at once.
const pgMaxExportLimit = 1000000

// ExportJSON exports all recorded results to a JSON writer.
func (s *PostgresStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	query := `
		SELECT id, subject, test_key, value, unit, status, report_id, recorded_at
		FROM lab_results
		ORDER BY recorded_at DESC, id DESC
		LIMIT $1
	`

	rows, err := s.db.QueryContext(ctx, query, pgMaxExportLimit)
	if err != nil {
		return fmt.Errorf("failed to list results: %w", err)
	}
	defer rows.Close()

	var all []*Result
	for rows.Next() {
		r := &Result{}
		var testKey, status string

		err := rows.Scan(
			&r.ID, &r.Subject, &testKey, &r.Value, &r.Unit,
			&status, &r.ReportID, &r.RecordedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to scan row: %w", err)
		}

		r.Test = domain.TestKey(testKey)
		r.Status = domain.Status(status)
		all = append(all, r)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to list results: %w", err)
	}

	export := &ResultExport{
		Version:    "1.0",
		ExportedAt: time.Now(),
		Count:      len(all),
		Results:    all,
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}

// ImportJSON imports results from a JSON reader.
func (s *PostgresStore) ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error) {
	var export ResultExport
	if err := json.NewDecoder(reader).Decode(&export); err != nil {
		return 0, 0, fmt.Errorf("failed to decode JSON: %w", err)
	}

	for _, r := range export.Results {
		var id int64
		err := s.db.QueryRowContext(ctx,
			"SELECT id FROM lab_results WHERE subject = $1 AND test_key = $2 AND recorded_at = $3 LIMIT 1",
			r.Subject, string(r.Test), r.RecordedAt,
		).Scan(&id)
		if err == nil {
			skipped++
			continue
		}
		if err != sql.ErrNoRows {
			return imported, skipped, fmt.Errorf("failed to check existing: %w", err)
		}

		r.ID = 0
		if err := s.Record(ctx, r); err != nil {
			return imported, skipped, fmt.Errorf("failed to record: %w", err)
		}
		imported++
	}

	return imported, skipped, nil
}

// Close closes the store and releases resources.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
