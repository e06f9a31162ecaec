package models

import (
	"time"

	"github.com/google/uuid"
)

// AlertEvent 一次持续低HRV报警事件（触发时落库，恢复时回填 cleared_at）
type AlertEvent struct {
	EventID     string     `json:"event_id"`
	DeviceID    string     `json:"device_id"`
	TriggeredAt time.Time  `json:"triggered_at"`
	ClearedAt   *time.Time `json:"cleared_at,omitempty"`
	SDNN        float64    `json:"sdnn_ms"`     // 触发时刻的 SDNN
	Baseline    float64    `json:"baseline_ms"` // 触发时刻的基线
	Ratio       float64    `json:"ratio"`       // SDNN/基线
	CreatedAt   time.Time  `json:"created_at"`
}

// NewAlertEvent 从触发时刻的指标快照构建报警事件
func NewAlertEvent(snapshot *MetricSnapshot) *AlertEvent {
	now := time.Now()

	ratio := 0.0
	if snapshot.Baseline > 0 {
		ratio = snapshot.SDNN / snapshot.Baseline
	}

	return &AlertEvent{
		EventID:     uuid.New().String(),
		DeviceID:    snapshot.DeviceID,
		TriggeredAt: time.UnixMilli(snapshot.Timestamp),
		SDNN:        snapshot.SDNN,
		Baseline:    snapshot.Baseline,
		Ratio:       ratio,
		CreatedAt:   now,
	}
}
