package pipeline

import (
	"time"

	"focusband-monitor/internal/hrv"
	"focusband-monitor/internal/models"

	"go.uber.org/zap"
)

// Options 管线构造参数（全部来自配置面，非法值使构造失败）
type Options struct {
	WindowDuration    time.Duration // 滚动窗口时长
	MinSamples        int           // 产出样本所需的最小间期数
	Alpha             float64       // 基线 EMA 平滑系数，(0,1]
	BaselineSeed      *float64      // 可选的基线种子值
	LowRatioThreshold float64       // 低比值阈值，(0,1]
	SustainDuration   time.Duration // 触发报警所需的持续低于阈值时长
	RecoveryDuration  time.Duration // 清除报警所需的持续恢复时长（0 = 立即清除）
}

// Result 单个间期处理完成后的管线输出
type Result struct {
	Timestamp time.Time
	HR        float64
	SDNN      float64
	RMSSD     float64
	Baseline  float64
	State     models.AlertState
	AlertEdge bool
}

// Pipeline 信号到决策管线：窗口 → 样本 → 基线 → 状态机
// 单线程同步处理，每个间期处理完成后才接受下一个；
// 调用方若从并发环境投递间期，需在边界自行加锁
type Pipeline struct {
	window   *hrv.MetricWindow
	baseline *hrv.BaselineTracker
	detector *hrv.DeviationDetector
	logger   *zap.Logger
}

// New 创建管线，任一组件参数非法时返回 ErrInvalidConfiguration
func New(opts Options, logger *zap.Logger) (*Pipeline, error) {
	window, err := hrv.NewMetricWindow(opts.WindowDuration, opts.MinSamples)
	if err != nil {
		return nil, err
	}
	baseline, err := hrv.NewBaselineTracker(opts.Alpha, opts.BaselineSeed)
	if err != nil {
		return nil, err
	}
	detector, err := hrv.NewDeviationDetector(opts.LowRatioThreshold, opts.SustainDuration, opts.RecoveryDuration)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		window:   window,
		baseline: baseline,
		detector: detector,
		logger:   logger,
	}, nil
}

// Process 处理一个间期
// 返回 (nil, nil) 表示窗口数据尚不足；错误语义见 hrv 包的错误类别
//
// 基线更新在状态非 NORMAL 时被抑制：低谷一旦开始（进入 BELOW_THRESHOLD），
// 基线即冻结，否则 30 秒量级的持续判定窗口内基线会追着低谷收敛，
// 比值回到阈值之上，报警永远无法触发
func (p *Pipeline) Process(interval models.Interval) (*Result, error) {
	sample, err := p.window.Push(interval)
	if err != nil {
		return nil, err
	}
	if sample == nil {
		return nil, nil
	}

	suppress := p.detector.State() != models.StateNormal
	baseline, err := p.baseline.Update(sample.SDNN, suppress)
	if err != nil {
		return nil, err
	}

	state, edge := p.detector.Update(sample.SDNN, baseline, sample.Timestamp)
	if edge {
		switch state {
		case models.StateAlerting:
			p.logger.Info("Alert triggered",
				zap.Float64("sdnn", sample.SDNN),
				zap.Float64("baseline", baseline),
				zap.Time("timestamp", sample.Timestamp),
			)
		case models.StateNormal:
			p.logger.Info("Alert cleared",
				zap.Float64("sdnn", sample.SDNN),
				zap.Float64("baseline", baseline),
				zap.Time("timestamp", sample.Timestamp),
			)
		}
	}

	return &Result{
		Timestamp: sample.Timestamp,
		HR:        sample.HR,
		SDNN:      sample.SDNN,
		RMSSD:     sample.RMSSD,
		Baseline:  baseline,
		State:     state,
		AlertEdge: edge,
	}, nil
}
