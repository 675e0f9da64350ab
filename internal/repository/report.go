package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/lab-report-companion/internal/domain"
)

// ReportRepository handles report persistence in PostgreSQL. It implements
// domain.ReportStore: report rows live in the reports table, the per-test
// analysis rows in report_results, rebuilt into a ReportAnalysis on read.
type ReportRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewReportRepository creates a new report repository
func NewReportRepository(db *pgxpool.Pool, logger *logrus.Logger) *ReportRepository {
	return &ReportRepository{
		db:  db,
		log: logger,
	}
}

// CreateReport inserts a new report record in its initial state
func (r *ReportRepository) CreateReport(ctx context.Context, report *domain.Report) error {
	if err := report.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO reports (
			id, subject, filename, status, raw_text, error, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)`

	now := time.Now()
	if report.CreatedAt.IsZero() {
		report.CreatedAt = now
	}
	if report.UpdatedAt.IsZero() {
		report.UpdatedAt = now
	}

	_, err := r.db.Exec(ctx, query,
		report.ID,
		report.Subject,
		report.Filename,
		string(report.Status),
		report.RawText,
		report.Error,
		report.CreatedAt,
		report.UpdatedAt,
	)

	if err != nil {
		r.log.WithFields(logrus.Fields{
			"report_id": report.ID,
			"subject":   report.Subject,
			"error":     err,
		}).Error("Failed to create report")
		return fmt.Errorf("creating report: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"report_id": report.ID,
		"subject":   report.Subject,
		"status":    report.Status,
	}).Info("Report created successfully")

	return nil
}

// GetReport retrieves a report by its ID, including the analysis when one
// has been saved
func (r *ReportRepository) GetReport(ctx context.Context, id string) (*domain.Report, error) {
	query := `
		SELECT id, subject, filename, status, raw_text, gender, age,
			   unrecognized, error, analyzed_at, created_at, updated_at, completed_at
		FROM reports
		WHERE id = $1`

	var report domain.Report
	var status, gender string
	var age *int
	var unrecognized []byte
	var analyzedAt *time.Time

	err := r.db.QueryRow(ctx, query, id).Scan(
		&report.ID,
		&report.Subject,
		&report.Filename,
		&status,
		&report.RawText,
		&gender,
		&age,
		&unrecognized,
		&report.Error,
		&analyzedAt,
		&report.CreatedAt,
		&report.UpdatedAt,
		&report.CompletedAt,
	)

	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("report not found: %w", domain.ErrNotFound)
		}
		r.log.WithFields(logrus.Fields{
			"report_id": id,
			"error":     err,
		}).Error("Failed to get report by ID")
		return nil, fmt.Errorf("getting report by ID: %w", err)
	}

	report.Status = domain.ReportStatus(status)

	if analyzedAt != nil {
		analysis, err := r.loadAnalysis(ctx, id, gender, age, unrecognized, *analyzedAt)
		if err != nil {
			return nil, err
		}
		report.Analysis = analysis
	}

	return &report, nil
}

// UpdateStatus transitions a report's lifecycle state. Terminal states set
// the completion timestamp.
func (r *ReportRepository) UpdateStatus(ctx context.Context, id string, status domain.ReportStatus, errMsg string) error {
	if !status.IsValid() {
		return fmt.Errorf("updating report status: %w", domain.ErrInvalidReportStatus)
	}

	query := `
		UPDATE reports
		SET status = $2, error = $3, updated_at = NOW(),
			completed_at = CASE WHEN $4 THEN NOW() ELSE completed_at END
		WHERE id = $1`

	result, err := r.db.Exec(ctx, query, id, string(status), errMsg, status.Terminal())
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"report_id": id,
			"status":    status,
			"error":     err,
		}).Error("Failed to update report status")
		return fmt.Errorf("updating report status: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("report not found: %w", domain.ErrNotFound)
	}

	r.log.WithFields(logrus.Fields{
		"report_id": id,
		"status":    status,
	}).Debug("Report status updated")

	return nil
}

// SaveAnalysis persists a completed analysis and transitions the report to
// COMPLETE. Result rows are replaced wholesale so retried jobs stay clean.
func (r *ReportRepository) SaveAnalysis(ctx context.Context, id string, analysis *domain.ReportAnalysis) error {
	if analysis == nil {
		return fmt.Errorf("saving analysis: analysis is required")
	}

	unrecognized, err := json.Marshal(analysis.Unrecognized)
	if err != nil {
		return fmt.Errorf("marshaling unrecognized measurements: %w", err)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning analysis transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE reports
		SET status = $2, gender = $3, age = $4, unrecognized = $5,
			analyzed_at = $6, error = '', updated_at = NOW(), completed_at = NOW()
		WHERE id = $1`

	result, err := tx.Exec(ctx, query,
		id,
		string(domain.REPORT_COMPLETE),
		string(analysis.Demographics.ResolvedGender()),
		analysis.Demographics.Age,
		unrecognized,
		analysis.AnalyzedAt,
	)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"report_id": id,
			"error":     err,
		}).Error("Failed to save report analysis")
		return fmt.Errorf("saving analysis: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("report not found: %w", domain.ErrNotFound)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM report_results WHERE report_id = $1`, id); err != nil {
		return fmt.Errorf("clearing previous results: %w", err)
	}

	insert := `
		INSERT INTO report_results (
			report_id, position, test_key, display_name, panel, value, unit,
			status, range_low, range_high, range_unit, trend, previous_value,
			message, suggestions, disclaimer
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16
		)`

	for i, res := range analysis.Results {
		suggestions, err := json.Marshal(res.Guidance.Suggestions)
		if err != nil {
			return fmt.Errorf("marshaling suggestions: %w", err)
		}

		_, err = tx.Exec(ctx, insert,
			id,
			i,
			string(res.Test),
			res.DisplayName,
			string(res.Panel),
			res.Value,
			res.Unit,
			string(res.Status),
			res.Range.Low,
			res.Range.High,
			res.Range.Unit,
			string(res.Trend),
			res.Previous,
			res.Guidance.Message,
			suggestions,
			res.Guidance.Disclaimer,
		)
		if err != nil {
			r.log.WithFields(logrus.Fields{
				"report_id": id,
				"test":      res.Test,
				"error":     err,
			}).Error("Failed to insert analyzed result")
			return fmt.Errorf("inserting analyzed result: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing analysis transaction: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"report_id":    id,
		"results":      len(analysis.Results),
		"unrecognized": len(analysis.Unrecognized),
	}).Info("Report analysis saved")

	return nil
}

// ListBySubject retrieves a subject's reports, newest first. Analysis rows
// are not loaded; callers fetch individual reports for full results.
func (r *ReportRepository) ListBySubject(ctx context.Context, subject string, limit int) ([]*domain.Report, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, subject, filename, status, error, created_at, updated_at, completed_at
		FROM reports
		WHERE subject = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, subject, limit)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"subject": subject,
			"error":   err,
		}).Error("Failed to list reports by subject")
		return nil, fmt.Errorf("listing reports by subject: %w", err)
	}
	defer rows.Close()

	var reports []*domain.Report
	for rows.Next() {
		var report domain.Report
		var status string

		err := rows.Scan(
			&report.ID,
			&report.Subject,
			&report.Filename,
			&status,
			&report.Error,
			&report.CreatedAt,
			&report.UpdatedAt,
			&report.CompletedAt,
		)
		if err != nil {
			r.log.WithFields(logrus.Fields{
				"subject": subject,
				"error":   err,
			}).Error("Failed to scan report row")
			return nil, fmt.Errorf("scanning report row: %w", err)
		}

		report.Status = domain.ReportStatus(status)
		reports = append(reports, &report)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating report rows: %w", err)
	}

	return reports, nil
}

// loadAnalysis rebuilds a ReportAnalysis from the report's result rows.
func (r *ReportRepository) loadAnalysis(ctx context.Context, id, gender string, age *int, unrecognized []byte, analyzedAt time.Time) (*domain.ReportAnalysis, error) {
	query := `
		SELECT test_key, display_name, panel, value, unit, status,
			   range_low, range_high, range_unit, trend, previous_value,
			   message, suggestions, disclaimer
		FROM report_results
		WHERE report_id = $1
		ORDER BY position`

	rows, err := r.db.Query(ctx, query, id)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"report_id": id,
			"error":     err,
		}).Error("Failed to load analyzed results")
		return nil, fmt.Errorf("loading analyzed results: %w", err)
	}
	defer rows.Close()

	analysis := &domain.ReportAnalysis{
		Results:    []domain.AnalyzedResult{},
		Disclaimer: domain.Disclaimer,
		AnalyzedAt: analyzedAt,
	}

	for rows.Next() {
		var res domain.AnalyzedResult
		var testKey, panel, status, trend string
		var suggestions []byte

		err := rows.Scan(
			&testKey,
			&res.DisplayName,
			&panel,
			&res.Value,
			&res.Unit,
			&status,
			&res.Range.Low,
			&res.Range.High,
			&res.Range.Unit,
			&trend,
			&res.Previous,
			&res.Guidance.Message,
			&suggestions,
			&res.Guidance.Disclaimer,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning analyzed result row: %w", err)
		}

		res.Test = domain.TestKey(testKey)
		res.Panel = domain.PanelKey(panel)
		res.Status = domain.Status(status)
		res.Trend = domain.Trend(trend)

		if len(suggestions) > 0 {
			if err := json.Unmarshal(suggestions, &res.Guidance.Suggestions); err != nil {
				return nil, fmt.Errorf("unmarshaling suggestions: %w", err)
			}
		}

		analysis.Results = append(analysis.Results, res)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating analyzed result rows: %w", err)
	}

	if len(unrecognized) > 0 {
		if err := json.Unmarshal(unrecognized, &analysis.Unrecognized); err != nil {
			return nil, fmt.Errorf("unmarshaling unrecognized measurements: %w", err)
		}
	}

	analysis.Demographics = domain.Demographics{
		Gender: domain.Gender(gender),
		Age:    age,
	}

	return analysis, nil
}
