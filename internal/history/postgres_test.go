package history

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lab-report-companion/internal/domain"
)

// getTestDB returns a database connection for testing.
// Skip test if TEST_DATABASE_URL is not set.
func getTestDB(t *testing.T) *sql.DB {
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping PostgreSQL tests")
	}

	db, err := sql.Open("postgres", dbURL)
	require.NoError(t, err)

	// Create results table for testing
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS lab_results (
			id BIGSERIAL PRIMARY KEY,
			subject TEXT NOT NULL,
			test_key TEXT NOT NULL,
			value DOUBLE PRECISION NOT NULL,
			unit TEXT DEFAULT '',
			status TEXT NOT NULL,
			report_id TEXT DEFAULT '',
			recorded_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`)
	require.NoError(t, err)

	// Clean up before test
	_, err = db.Exec("DELETE FROM lab_results")
	require.NoError(t, err)

	return db
}

func TestPostgresStore_Record(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()

	store, err := NewPostgresStore(db)
	require.NoError(t, err)

	ctx := context.Background()
	r := &Result{
		Subject:  "patient-42",
		Test:     domain.GLUCOSE,
		Value:    95.0,
		Unit:     "mg/dL",
		Status:   domain.NORMAL,
		ReportID: "report-1",
	}

	err = store.Record(ctx, r)
	require.NoError(t, err)
	assert.NotZero(t, r.ID)
	assert.False(t, r.RecordedAt.IsZero())
}

func TestPostgresStore_Previous(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()

	store, err := NewPostgresStore(db)
	require.NoError(t, err)

	ctx := context.Background()

	// Not found
	prev, err := store.Previous(ctx, "nobody", domain.WBC)
	require.NoError(t, err)
	assert.Nil(t, prev)

	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, store.Record(ctx, &Result{
		Subject: "patient-42", Test: domain.WBC, Value: 12.5,
		Status: domain.HIGH, RecordedAt: base,
	}))
	require.NoError(t, store.Record(ctx, &Result{
		Subject: "patient-42", Test: domain.WBC, Value: 8.0,
		Status: domain.NORMAL, RecordedAt: base.AddDate(0, 1, 0),
	}))

	prev, err = store.Previous(ctx, "patient-42", domain.WBC)
	require.NoError(t, err)
	require.NotNil(t, prev)
	assert.Equal(t, 8.0, prev.Value)
	assert.Equal(t, domain.NORMAL, prev.Status)
}

func TestPostgresStore_ListBySubject(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()

	store, err := NewPostgresStore(db)
	require.NoError(t, err)

	ctx := context.Background()

	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, store.Record(ctx, &Result{
			Subject:    "patient-42",
			Test:       domain.GLUCOSE,
			Value:      90.0 + float64(i),
			Status:     domain.NORMAL,
			RecordedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	list, err := store.ListBySubject(ctx, "patient-42", 3, 0)
	require.NoError(t, err)
	assert.Len(t, list, 3)
	assert.Equal(t, 94.0, list[0].Value, "Newest result first")

	list, err = store.ListBySubject(ctx, "patient-42", 3, 3)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestPostgresStore_CountAndDelete(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()

	store, err := NewPostgresStore(db)
	require.NoError(t, err)

	ctx := context.Background()

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	r := &Result{Subject: "patient-42", Test: domain.PLT, Value: 250.0, Status: domain.NORMAL}
	require.NoError(t, store.Record(ctx, r))

	count, err = store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	require.NoError(t, store.Delete(ctx, r.ID))

	count, err = store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}
