package hrv

import "errors"

// 管线错误类别
// - ErrOutOfOrderInput: 间期时间戳回退，拒绝该样本，窗口保持不变，由调用方记录/丢弃
// - ErrInvalidMetric: 非法指标输入（负的SDNN、非正的间期时长），属于契约违反，对该管线实例致命
// - ErrInvalidConfiguration: 非法构造参数，启动时致命，绝不静默修正
var (
	ErrOutOfOrderInput      = errors.New("out of order input")
	ErrInvalidMetric        = errors.New("invalid metric")
	ErrInvalidConfiguration = errors.New("invalid configuration")
)
