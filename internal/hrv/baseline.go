package hrv

import "fmt"

// BaselineTracker 个人基线跟踪器（SDNN 的指数移动平均）
// 公式：baseline = alpha*sdnn + (1-alpha)*baseline
type BaselineTracker struct {
	alpha       float64
	value       float64
	initialized bool
}

// NewBaselineTracker 创建基线跟踪器
// alpha 必须在 (0,1] 内；seed 为可选的初始基线值（nil 表示用首个样本初始化）
// 提供 seed 时首个实时样本按公式正常折入，不再作为种子
func NewBaselineTracker(alpha float64, seed *float64) (*BaselineTracker, error) {
	if alpha <= 0 || alpha > 1 {
		return nil, fmt.Errorf("%w: alpha must be in (0,1], got %f", ErrInvalidConfiguration, alpha)
	}
	t := &BaselineTracker{alpha: alpha}
	if seed != nil {
		if *seed <= 0 {
			return nil, fmt.Errorf("%w: baseline seed must be positive, got %f", ErrInvalidConfiguration, *seed)
		}
		t.value = *seed
		t.initialized = true
	}
	return t, nil
}

// Update 用新的 SDNN 样本更新基线并返回当前基线
// suppress 为 true 时不更新（报警期间冻结基线，防止持续低谷污染参照值）
// SDNN 为负返回 ErrInvalidMetric
func (t *BaselineTracker) Update(sdnn float64, suppress bool) (float64, error) {
	if sdnn < 0 {
		return 0, fmt.Errorf("%w: sdnn must be non-negative, got %f", ErrInvalidMetric, sdnn)
	}

	if !t.initialized {
		t.value = sdnn
		t.initialized = true
		return t.value, nil
	}

	if suppress {
		return t.value, nil
	}

	t.value = t.alpha*sdnn + (1-t.alpha)*t.value
	return t.value, nil
}

// Value 当前基线值（未初始化时为 0）
func (t *BaselineTracker) Value() float64 {
	return t.value
}

// Initialized 基线是否已初始化
func (t *BaselineTracker) Initialized() bool {
	return t.initialized
}
