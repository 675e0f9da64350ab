package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lab-report-companion/internal/domain"
)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore creates a new SQLite result history store.
// It creates the database file and schema if they don't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	// Open database
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	// Create schema
	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanResult scans a row into a Result struct.
func scanResult(s scanner) (*Result, error) {
	r := &Result{}
	var testKey, status string

	err := s.Scan(
		&r.ID, &r.Subject, &testKey, &r.Value, &r.Unit,
		&status, &r.ReportID, &r.RecordedAt,
	)
	if err != nil {
		return nil, err
	}

	r.Test = domain.TestKey(testKey)
	r.Status = domain.Status(status)
	return r, nil
}

// createSchema creates the database tables and indexes.
func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS lab_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		subject TEXT NOT NULL,
		test_key TEXT NOT NULL,
		value REAL NOT NULL,
		unit TEXT DEFAULT '',
		status TEXT NOT NULL,
		report_id TEXT DEFAULT '',
		recorded_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_results_subject_test ON lab_results(subject, test_key, recorded_at);
	CREATE INDEX IF NOT EXISTS idx_results_recorded_at ON lab_results(recorded_at);
	`

	_, err := db.Exec(schema)
	return err
}

// Record appends a classified result.
func (s *SQLiteStore) Record(ctx context.Context, result *Result) error {
	if result.RecordedAt.IsZero() {
		result.RecordedAt = time.Now()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO lab_results (
			subject, test_key, value, unit, status, report_id, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		result.Subject,
		string(result.Test),
		result.Value,
		result.Unit,
		string(result.Status),
		result.ReportID,
		result.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get insert ID: %w", err)
	}
	result.ID = id

	return nil
}

// Previous returns the most recent recorded result for the subject and test.
func (s *SQLiteStore) Previous(ctx context.Context, subject string, test domain.TestKey) (*Result, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, subject, test_key, value, unit, status, report_id, recorded_at
		FROM lab_results
		WHERE subject = ? AND test_key = ?
		ORDER BY recorded_at DESC, id DESC
		LIMIT 1
	`, subject, string(test))

	r, err := scanResult(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan: %w", err)
	}
	return r, nil
}

// ListBySubject returns a subject's results, newest first, with pagination.
func (s *SQLiteStore) ListBySubject(ctx context.Context, subject string, limit, offset int) ([]*Result, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, subject, test_key, value, unit, status, report_id, recorded_at
		FROM lab_results
		WHERE subject = ?
		ORDER BY recorded_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, subject, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	var result []*Result
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// Count returns the total number of recorded results.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM lab_results").Scan(&count)
	return count, err
}

// Delete removes a recorded result by ID.
func (s *SQLiteStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM lab_results WHERE id = ?", id)
	return err
}

// exists reports whether a row with the same subject, test, and timestamp
// is already recorded.
func (s *SQLiteStore) exists(ctx context.Context, r *Result) (bool, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		"SELECT id FROM lab_results WHERE subject = ? AND test_key = ? AND recorded_at = ? LIMIT 1",
		r.Subject, string(r.Test), r.RecordedAt,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// maxExportLimit is the maximum number of entries to export at once.
const maxExportLimit = 1000000

// ExportJSON exports all recorded results to a JSON writer.
func (s *SQLiteStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, subject, test_key, value, unit, status, report_id, recorded_at
		FROM lab_results
		ORDER BY recorded_at DESC, id DESC
		LIMIT ?
	`, maxExportLimit)
	if err != nil {
		return fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	var all []*Result
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return fmt.Errorf("failed to scan row: %w", err)
		}
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
func (s *SQLiteStore) ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error) {
	var export ResultExport
	if err := json.NewDecoder(reader).Decode(&export); err != nil {
		return 0, 0, fmt.Errorf("failed to decode JSON: %w", err)
	}

	for _, r := range export.Results {
		found, err := s.exists(ctx, r)
		if err != nil {
			return imported, skipped, fmt.Errorf("failed to check existing: %w", err)
		}
		if found {
			skipped++
			continue
		}

		// Reset the exported ID so the insert assigns a fresh one
		r.ID = 0
		if err := s.Record(ctx, r); err != nil {
			return imported, skipped, fmt.Errorf("failed to record: %w", err)
		}
		imported++
	}

	return imported, skipped, nil
}

// Close closes the store and releases resources.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
