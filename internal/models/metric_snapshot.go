package models

// MetricSnapshot 单次处理后的完整指标快照（用于缓存、发布和落库）
// 与 Sample 的区别：包含基线、报警状态和边沿标记
type MetricSnapshot struct {
	DeviceID   string     `json:"device_id"`
	Timestamp  int64      `json:"timestamp"` // Unix 毫秒时间戳
	HR         float64    `json:"hr"`
	SDNN       float64    `json:"sdnn_ms"`
	RMSSD      float64    `json:"rmssd_ms"`
	Baseline   float64    `json:"baseline_ms"`
	AlertState AlertState `json:"alert_state"`
	AlertEdge  bool       `json:"alert_edge"` // 仅在进入/退出 ALERTING 的那一个样本为 true
}
