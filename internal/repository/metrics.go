package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"focusband-monitor/internal/models"

	"go.uber.org/zap"
)

// MetricsRepository 指标记录仓库（只追加带时间戳的记录）
type MetricsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewMetricsRepository 创建指标记录仓库
func NewMetricsRepository(db *sql.DB, logger *zap.Logger) *MetricsRepository {
	return &MetricsRepository{
		db:     db,
		logger: logger,
	}
}

// AppendMetricRecord 追加一条指标记录
func (r *MetricsRepository) AppendMetricRecord(ctx context.Context, snapshot *models.MetricSnapshot) error {
	if snapshot.DeviceID == "" {
		return fmt.Errorf("device_id is required")
	}

	query := `
		INSERT INTO hrv_metrics (
			device_id,
			recorded_at,
			heart_rate,
			sdnn_ms,
			rmssd_ms,
			baseline_ms,
			alert_state,
			alert_edge
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.ExecContext(ctx, query,
		snapshot.DeviceID,
		time.UnixMilli(snapshot.Timestamp),
		snapshot.HR,
		snapshot.SDNN,
		snapshot.RMSSD,
		snapshot.Baseline,
		string(snapshot.AlertState),
		snapshot.AlertEdge,
	)
	if err != nil {
		return fmt.Errorf("failed to append metric record: %w", err)
	}

	return nil
}
