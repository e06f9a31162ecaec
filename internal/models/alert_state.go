package models

// AlertState 报警状态机状态
type AlertState string

const (
	StateNormal         AlertState = "NORMAL"          // 正常
	StateBelowThreshold AlertState = "BELOW_THRESHOLD" // 低于阈值（持续时间未满）
	StateAlerting       AlertState = "ALERTING"        // 报警中
)
