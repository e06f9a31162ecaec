package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"focusband-monitor/internal/models"

	"go.uber.org/zap"
)

// AlertEventsRepository 报警事件仓库
type AlertEventsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAlertEventsRepository 创建报警事件仓库
func NewAlertEventsRepository(db *sql.DB, logger *zap.Logger) *AlertEventsRepository {
	return &AlertEventsRepository{
		db:     db,
		logger: logger,
	}
}

// InsertAlertEvent 写入一条报警事件（进入 ALERTING 的边沿时调用）
func (r *AlertEventsRepository) InsertAlertEvent(ctx context.Context, event *models.AlertEvent) error {
	if event.EventID == "" {
		return fmt.Errorf("event_id is required")
	}
	if event.DeviceID == "" {
		return fmt.Errorf("device_id is required")
	}

	query := `
		INSERT INTO alert_events (
			event_id,
			device_id,
			triggered_at,
			cleared_at,
			sdnn_ms,
			baseline_ms,
			ratio,
			created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.ExecContext(ctx, query,
		event.EventID,
		event.DeviceID,
		event.TriggeredAt,
		event.ClearedAt,
		event.SDNN,
		event.Baseline,
		event.Ratio,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert event: %w", err)
	}

	r.logger.Info("Alert event inserted",
		zap.String("event_id", event.EventID),
		zap.String("device_id", event.DeviceID),
	)

	return nil
}

// ClearAlertEvent 回填设备当前活动报警事件的清除时间（退出 ALERTING 的边沿时调用）
func (r *AlertEventsRepository) ClearAlertEvent(ctx context.Context, deviceID string, clearedAt time.Time) error {
	if deviceID == "" {
		return fmt.Errorf("device_id is required")
	}

	query := `
		UPDATE alert_events
		SET cleared_at = $1
		WHERE device_id = $2
		  AND cleared_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, query, clearedAt, deviceID)
	if err != nil {
		return fmt.Errorf("failed to clear alert event: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("no active alert event found for device %s", deviceID)
	}

	return nil
}

// ListRecentAlertEvents 查询设备最近的报警事件（按触发时间倒序）
func (r *AlertEventsRepository) ListRecentAlertEvents(ctx context.Context, deviceID string, limit int) ([]models.AlertEvent, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("device_id is required")
	}
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT
			event_id,
			device_id,
			triggered_at,
			cleared_at,
			sdnn_ms,
			baseline_ms,
			ratio,
			created_at
		FROM alert_events
		WHERE device_id = $1
		ORDER BY triggered_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list alert events: %w", err)
	}
	defer rows.Close()

	var events []models.AlertEvent
	for rows.Next() {
		var event models.AlertEvent
		var clearedAt sql.NullTime

		if err := rows.Scan(
			&event.EventID,
			&event.DeviceID,
			&event.TriggeredAt,
			&clearedAt,
			&event.SDNN,
			&event.Baseline,
			&event.Ratio,
			&event.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan alert event: %w", err)
		}

		if clearedAt.Valid {
			event.ClearedAt = &clearedAt.Time
		}

		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate alert events: %w", err)
	}

	return events, nil
}
