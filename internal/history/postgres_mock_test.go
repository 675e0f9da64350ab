package history

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lab-report-companion/internal/domain"
)

// newMockStore returns a PostgresStore backed by sqlmock so the SQL paths
// can be exercised without a live server. Pings are not monitored, so the
// constructor's connectivity check passes.
func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store, err := NewPostgresStore(db)
	require.NoError(t, err)
	return store, mock
}

func TestPostgresStore_RecordSQL(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("INSERT INTO lab_results").
		WithArgs("patient-42", "GLUCOSE", 95.0, "mg/dL", "NORMAL", "report-1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

	r := &Result{
		Subject:  "patient-42",
		Test:     domain.GLUCOSE,
		Value:    95.0,
		Unit:     "mg/dL",
		Status:   domain.NORMAL,
		ReportID: "report-1",
	}
	require.NoError(t, store.Record(context.Background(), r))
	assert.Equal(t, int64(7), r.ID)
	assert.False(t, r.RecordedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_PreviousSQL(t *testing.T) {
	store, mock := newMockStore(t)

	recordedAt := time.Now().Add(-24 * time.Hour)
	rows := sqlmock.NewRows([]string{
		"id", "subject", "test_key", "value", "unit", "status", "report_id", "recorded_at",
	}).AddRow(int64(3), "patient-42", "WBC", 12.5, "10^3/µL", "HIGH", "", recordedAt)

	mock.ExpectQuery("SELECT (.+) FROM lab_results").
		WithArgs("patient-42", "WBC").
		WillReturnRows(rows)

	previous, err := store.Previous(context.Background(), "patient-42", domain.WBC)
	require.NoError(t, err)
	require.NotNil(t, previous)
	assert.Equal(t, domain.WBC, previous.Test)
	assert.Equal(t, 12.5, previous.Value)
	assert.Equal(t, domain.HIGH, previous.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_PreviousNoHistory(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM lab_results").
		WithArgs("patient-42", "WBC").
		WillReturnError(sql.ErrNoRows)

	previous, err := store.Previous(context.Background(), "patient-42", domain.WBC)
	require.NoError(t, err)
	assert.Nil(t, previous)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CountSQL(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(12)))

	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(12), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteSQL(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("DELETE FROM lab_results").
		WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Delete(context.Background(), 3))
	assert.NoError(t, mock.ExpectationsWereMet())
}
