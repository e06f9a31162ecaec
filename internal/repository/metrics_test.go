package repository

import (
	"context"
	"database/sql"
	"testing"

	"focusband-monitor/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupMockMetricsDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *MetricsRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	logger := zap.NewNop()
	repo := NewMetricsRepository(db, logger)

	return db, mock, repo
}

func TestAppendMetricRecord_Success(t *testing.T) {
	db, mock, repo := setupMockMetricsDB(t)
	defer db.Close()

	ctx := context.Background()
	snapshot := &models.MetricSnapshot{
		DeviceID:   "band-01",
		Timestamp:  1700000000000,
		HR:         75,
		SDNN:       50,
		RMSSD:      100,
		Baseline:   49.5,
		AlertState: models.StateNormal,
		AlertEdge:  false,
	}

	mock.ExpectExec(`INSERT INTO hrv_metrics`).
		WithArgs("band-01", sqlmock.AnyArg(), 75.0, 50.0, 100.0, 49.5, "NORMAL", false).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.AppendMetricRecord(ctx, snapshot)

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendMetricRecord_MissingDeviceID(t *testing.T) {
	db, _, repo := setupMockMetricsDB(t)
	defer db.Close()

	err := repo.AppendMetricRecord(context.Background(), &models.MetricSnapshot{})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "device_id is required")
}
