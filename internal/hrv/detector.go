package hrv

import (
	"fmt"
	"time"

	"focusband-monitor/internal/models"
)

// DeviationDetector 持续偏离检测器
// 状态机 {NORMAL, BELOW_THRESHOLD, ALERTING}，由每个 (sdnn, baseline, timestamp) 三元组驱动：
//   - NORMAL → BELOW_THRESHOLD：r = sdnn/baseline 严格小于阈值，记录 belowSince
//   - BELOW_THRESHOLD → NORMAL：持续时间未满即恢复
//   - BELOW_THRESHOLD → ALERTING：低于阈值持续 sustainDuration，此时边沿为 true
//   - ALERTING → NORMAL：恢复到阈值以上（默认立即清除；recoveryDuration > 0 时
//     需要恢复读数持续该时长才清除），清除时边沿为 true
//
// baseline 为 0 时比值未定义，保持前一状态
type DeviationDetector struct {
	lowRatioThreshold float64
	sustainDuration   time.Duration
	recoveryDuration  time.Duration

	state      models.AlertState
	belowSince time.Time
	aboveSince time.Time // 报警期间恢复读数的起始时刻（仅 recoveryDuration > 0 时使用）
}

// NewDeviationDetector 创建偏离检测器
// lowRatioThreshold 必须在 (0,1] 内，sustainDuration 必须为正，recoveryDuration 不可为负
func NewDeviationDetector(lowRatioThreshold float64, sustainDuration, recoveryDuration time.Duration) (*DeviationDetector, error) {
	if lowRatioThreshold <= 0 || lowRatioThreshold > 1 {
		return nil, fmt.Errorf("%w: low ratio threshold must be in (0,1], got %f", ErrInvalidConfiguration, lowRatioThreshold)
	}
	if sustainDuration <= 0 {
		return nil, fmt.Errorf("%w: sustain duration must be positive, got %v", ErrInvalidConfiguration, sustainDuration)
	}
	if recoveryDuration < 0 {
		return nil, fmt.Errorf("%w: recovery duration must be non-negative, got %v", ErrInvalidConfiguration, recoveryDuration)
	}
	return &DeviationDetector{
		lowRatioThreshold: lowRatioThreshold,
		sustainDuration:   sustainDuration,
		recoveryDuration:  recoveryDuration,
		state:             models.StateNormal,
	}, nil
}

// Update 处理一个新样本，返回当前状态和报警边沿
// 边沿仅在进入 ALERTING 或从 ALERTING 退出的那一个样本为 true，
// 供下游对每次事件只动作一次
func (d *DeviationDetector) Update(sdnn, baseline float64, timestamp time.Time) (models.AlertState, bool) {
	// 基线为 0 时比值未定义，保持前一状态
	if baseline == 0 {
		return d.state, false
	}

	below := sdnn/baseline < d.lowRatioThreshold

	switch d.state {
	case models.StateNormal:
		if below {
			d.state = models.StateBelowThreshold
			d.belowSince = timestamp
		}

	case models.StateBelowThreshold:
		if !below {
			d.state = models.StateNormal
			d.belowSince = time.Time{}
		} else if timestamp.Sub(d.belowSince) >= d.sustainDuration {
			d.state = models.StateAlerting
			return d.state, true
		}

	case models.StateAlerting:
		if below {
			// 仍在报警，恢复计时清零
			d.aboveSince = time.Time{}
		} else if d.recoveryDuration == 0 {
			d.clearAlert()
			return d.state, true
		} else {
			if d.aboveSince.IsZero() {
				d.aboveSince = timestamp
			}
			if timestamp.Sub(d.aboveSince) >= d.recoveryDuration {
				d.clearAlert()
				return d.state, true
			}
		}
	}

	return d.state, false
}

// State 当前报警状态
func (d *DeviationDetector) State() models.AlertState {
	return d.state
}

func (d *DeviationDetector) clearAlert() {
	d.state = models.StateNormal
	d.belowSince = time.Time{}
	d.aboveSince = time.Time{}
}
