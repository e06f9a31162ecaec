package models

import "time"

// Interval 单次心跳间期（RR间期）
// 由上游心跳检测（光电容积脉搏波峰值检测）产生，记录后不可变
type Interval struct {
	Timestamp  time.Time `json:"timestamp"`   // 间期结束时刻（即本次心跳时刻）
	DurationMs float64   `json:"duration_ms"` // 间期时长（毫秒，正数）
}

// Sample 滚动窗口派生的一次指标样本
type Sample struct {
	Timestamp time.Time `json:"timestamp"`
	HR        float64   `json:"hr"`       // 心率（次/分钟），60000/平均间期
	SDNN      float64   `json:"sdnn_ms"`  // 窗口内间期的标准差（毫秒）
	RMSSD     float64   `json:"rmssd_ms"` // 相邻间期差值的均方根（毫秒），仅作信息输出，不参与报警判定
}
