package repository

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/lab-report-companion/internal/database"
	"github.com/lab-report-companion/internal/domain"
)

// generateTestPassword creates a secure random password for test databases
func generateTestPassword() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to a default test password if random generation fails
		return "test_fallback_password_123"
	}
	return "test_" + hex.EncodeToString(bytes)
}

func setupTestDB(t *testing.T) (*database.DB, func()) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx := context.Background()

	// Generate secure random password for test database
	testPassword := generateTestPassword()

	// Start PostgreSQL container
	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword(testPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}

	// Get connection details
	host, err := pgContainer.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := pgContainer.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	// Create database connection
	config := &domain.DatabaseConfig{
		Host:            host,
		Port:            port.Int(),
		Database:        "testdb",
		Username:        "testuser",
		Password:        testPassword,
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Hour,
		SSLMode:         "disable",
	}

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	db, err := database.NewConnection(ctx, config, logger)
	if err != nil {
		t.Fatalf("Failed to create database connection: %v", err)
	}

	// Run migrations
	databaseURL := "postgres://testuser:" + testPassword + "@" + host + ":" + port.Port() + "/testdb?sslmode=disable"
	migrationRunner, err := database.NewMigrationRunner(databaseURL, "../../migrations", logger)
	if err != nil {
		t.Fatalf("Failed to create migration runner: %v", err)
	}

	if err := migrationRunner.Up(); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		migrationRunner.Close()
		db.Close()
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate PostgreSQL container: %v", err)
		}
	}

	return db, cleanup
}

func testRepo(t *testing.T, db *database.DB) *ReportRepository {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return NewReportRepository(db.Pool, logger)
}

func newPendingReport(subject string) *domain.Report {
	now := time.Now()
	return &domain.Report{
		ID:        uuid.New().String(),
		Subject:   subject,
		Filename:  "cbc-panel.pdf",
		Status:    domain.REPORT_PENDING,
		RawText:   "Hemoglobin: 14.2 g/dL",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func floatPtr(v float64) *float64 { return &v }

func intPtr(v int) *int { return &v }

func TestReportRepository_CreateAndGet(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := testRepo(t, db)
	ctx := context.Background()

	report := newPendingReport("patient-001")
	if err := repo.CreateReport(ctx, report); err != nil {
		t.Fatalf("Failed to create report: %v", err)
	}

	retrieved, err := repo.GetReport(ctx, report.ID)
	if err != nil {
		t.Fatalf("Failed to retrieve report: %v", err)
	}

	if retrieved.ID != report.ID {
		t.Errorf("Expected ID %s, got %s", report.ID, retrieved.ID)
	}
	if retrieved.Subject != "patient-001" {
		t.Errorf("Expected subject patient-001, got %s", retrieved.Subject)
	}
	if retrieved.Status != domain.REPORT_PENDING {
		t.Errorf("Expected status PENDING, got %s", retrieved.Status)
	}
	if retrieved.Analysis != nil {
		t.Error("Expected no analysis on a pending report")
	}
	if retrieved.CompletedAt != nil {
		t.Error("Expected no completion timestamp on a pending report")
	}
}

func TestReportRepository_GetMissing(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := testRepo(t, db)

	_, err := repo.GetReport(context.Background(), uuid.New().String())
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestReportRepository_UpdateStatus(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := testRepo(t, db)
	ctx := context.Background()

	report := newPendingReport("patient-002")
	if err := repo.CreateReport(ctx, report); err != nil {
		t.Fatalf("Failed to create report: %v", err)
	}

	if err := repo.UpdateStatus(ctx, report.ID, domain.REPORT_PROCESSING, ""); err != nil {
		t.Fatalf("Failed to mark report processing: %v", err)
	}

	retrieved, err := repo.GetReport(ctx, report.ID)
	if err != nil {
		t.Fatalf("Failed to retrieve report: %v", err)
	}
	if retrieved.Status != domain.REPORT_PROCESSING {
		t.Errorf("Expected status PROCESSING, got %s", retrieved.Status)
	}
	if retrieved.CompletedAt != nil {
		t.Error("Expected no completion timestamp while processing")
	}

	if err := repo.UpdateStatus(ctx, report.ID, domain.REPORT_FAILED, "extraction produced no content"); err != nil {
		t.Fatalf("Failed to mark report failed: %v", err)
	}

	retrieved, err = repo.GetReport(ctx, report.ID)
	if err != nil {
		t.Fatalf("Failed to retrieve report: %v", err)
	}
	if retrieved.Status != domain.REPORT_FAILED {
		t.Errorf("Expected status FAILED, got %s", retrieved.Status)
	}
	if retrieved.Error != "extraction produced no content" {
		t.Errorf("Expected failure message on report, got %q", retrieved.Error)
	}
	if retrieved.CompletedAt == nil {
		t.Error("Expected completion timestamp on a failed report")
	}

	// Unknown report IDs surface as not found
	err = repo.UpdateStatus(ctx, uuid.New().String(), domain.REPORT_PROCESSING, "")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown report, got %v", err)
	}
}

func TestReportRepository_SaveAnalysis(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := testRepo(t, db)
	ctx := context.Background()

	report := newPendingReport("patient-003")
	if err := repo.CreateReport(ctx, report); err != nil {
		t.Fatalf("Failed to create report: %v", err)
	}

	analysis := &domain.ReportAnalysis{
		Results: []domain.AnalyzedResult{
			{
				Test:        domain.TestKey("HGB"),
				DisplayName: "Hemoglobin",
				Panel:       domain.PANEL_CBC,
				Value:       14.2,
				Unit:        "g/dL",
				Status:      domain.NORMAL,
				Range:       domain.ReferenceRange{Low: floatPtr(13.5), High: floatPtr(17.5), Unit: "g/dL"},
				Guidance: domain.Guidance{
					Message:     "Your hemoglobin level is within the normal range.",
					Suggestions: []string{"Maintain a balanced diet with adequate iron."},
					Disclaimer:  domain.Disclaimer,
				},
			},
			{
				Test:        domain.TestKey("GLUCOSE"),
				DisplayName: "Glucose",
				Panel:       domain.PANEL_METABOLIC,
				Value:       160,
				Unit:        "mg/dL",
				Status:      domain.HIGH,
				Range:       domain.ReferenceRange{Low: floatPtr(70), High: floatPtr(100), Unit: "mg/dL"},
				Trend:       domain.WORSENING,
				Previous:    floatPtr(120),
				Guidance: domain.Guidance{
					Message:     "Your blood sugar is elevated.",
					Suggestions: []string{"Reduce sugary foods and refined carbohydrates.", "Please consult a doctor for proper evaluation."},
					Disclaimer:  domain.Disclaimer,
				},
			},
		},
		Unrecognized: []domain.Measurement{
			{Name: "Mystery Marker", Value: 42, Unit: "units"},
		},
		Demographics: domain.Demographics{Gender: domain.MALE, Age: intPtr(45)},
		Disclaimer:   domain.Disclaimer,
		AnalyzedAt:   time.Now(),
	}

	if err := repo.SaveAnalysis(ctx, report.ID, analysis); err != nil {
		t.Fatalf("Failed to save analysis: %v", err)
	}

	retrieved, err := repo.GetReport(ctx, report.ID)
	if err != nil {
		t.Fatalf("Failed to retrieve report: %v", err)
	}

	if retrieved.Status != domain.REPORT_COMPLETE {
		t.Errorf("Expected status COMPLETE, got %s", retrieved.Status)
	}
	if retrieved.CompletedAt == nil {
		t.Error("Expected completion timestamp on a completed report")
	}
	if retrieved.Analysis == nil {
		t.Fatal("Expected analysis on a completed report")
	}

	got := retrieved.Analysis
	if len(got.Results) != 2 {
		t.Fatalf("Expected 2 analyzed results, got %d", len(got.Results))
	}
	if got.Results[0].Test != domain.TestKey("HGB") || got.Results[1].Test != domain.TestKey("GLUCOSE") {
		t.Errorf("Results out of order: %s, %s", got.Results[0].Test, got.Results[1].Test)
	}

	glucose := got.Results[1]
	if glucose.Status != domain.HIGH {
		t.Errorf("Expected glucose status HIGH, got %s", glucose.Status)
	}
	if glucose.Trend != domain.WORSENING {
		t.Errorf("Expected glucose trend worsening, got %s", glucose.Trend)
	}
	if glucose.Previous == nil || *glucose.Previous != 120 {
		t.Errorf("Expected previous glucose value 120, got %v", glucose.Previous)
	}
	if glucose.Range.Low == nil || *glucose.Range.Low != 70 {
		t.Errorf("Expected glucose range low 70, got %v", glucose.Range.Low)
	}
	if len(glucose.Guidance.Suggestions) != 2 {
		t.Errorf("Expected 2 suggestions, got %d", len(glucose.Guidance.Suggestions))
	}
	if glucose.Guidance.Disclaimer != domain.Disclaimer {
		t.Error("Expected disclaimer on persisted guidance")
	}

	if len(got.Unrecognized) != 1 || got.Unrecognized[0].Name != "Mystery Marker" {
		t.Errorf("Expected unrecognized measurement to round-trip, got %+v", got.Unrecognized)
	}
	if got.Demographics.Gender != domain.MALE {
		t.Errorf("Expected gender MALE, got %s", got.Demographics.Gender)
	}
	if got.Demographics.Age == nil || *got.Demographics.Age != 45 {
		t.Errorf("Expected age 45, got %v", got.Demographics.Age)
	}

	// Saving again replaces rather than appends result rows
	if err := repo.SaveAnalysis(ctx, report.ID, analysis); err != nil {
		t.Fatalf("Failed to re-save analysis: %v", err)
	}
	retrieved, err = repo.GetReport(ctx, report.ID)
	if err != nil {
		t.Fatalf("Failed to retrieve report: %v", err)
	}
	if len(retrieved.Analysis.Results) != 2 {
		t.Errorf("Expected 2 results after re-save, got %d", len(retrieved.Analysis.Results))
	}
}

func TestReportRepository_ListBySubject(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := testRepo(t, db)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		report := newPendingReport("patient-004")
		if err := repo.CreateReport(ctx, report); err != nil {
			t.Fatalf("Failed to create report: %v", err)
		}
	}
	other := newPendingReport("patient-005")
	if err := repo.CreateReport(ctx, other); err != nil {
		t.Fatalf("Failed to create report: %v", err)
	}

	reports, err := repo.ListBySubject(ctx, "patient-004", 10)
	if err != nil {
		t.Fatalf("Failed to list reports by subject: %v", err)
	}

	if len(reports) != 2 {
		t.Errorf("Expected 2 reports, got %d", len(reports))
	}
	for _, report := range reports {
		if report.Subject != "patient-004" {
			t.Errorf("Expected subject patient-004, got %s", report.Subject)
		}
	}
}
