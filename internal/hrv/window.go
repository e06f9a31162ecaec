package hrv

import (
	"fmt"
	"math"
	"time"

	"focusband-monitor/internal/models"
)

// MetricWindow 时间有界的滚动间期窗口
// 不变量：窗口内所有间期的时间戳都落在最新时间戳往前 windowDuration 之内，
// 新间期到达时淘汰过期条目
type MetricWindow struct {
	windowDuration time.Duration
	minSamples     int
	intervals      []models.Interval
}

// NewMetricWindow 创建滚动窗口
// windowDuration 必须为正；minSamples 至少为 2（SDNN 需要至少 2 个样本）
func NewMetricWindow(windowDuration time.Duration, minSamples int) (*MetricWindow, error) {
	if windowDuration <= 0 {
		return nil, fmt.Errorf("%w: window duration must be positive, got %v", ErrInvalidConfiguration, windowDuration)
	}
	if minSamples < 2 {
		return nil, fmt.Errorf("%w: min samples must be >= 2, got %d", ErrInvalidConfiguration, minSamples)
	}
	return &MetricWindow{
		windowDuration: windowDuration,
		minSamples:     minSamples,
	}, nil
}

// Push 追加一个间期并返回当前窗口的指标样本
// 窗口内样本数不足 minSamples 时返回 (nil, nil)，表示"尚无样本"而非错误
// 时间戳回退返回 ErrOutOfOrderInput 且窗口内容不变；时间戳相等是允许的
func (w *MetricWindow) Push(interval models.Interval) (*models.Sample, error) {
	if interval.DurationMs <= 0 {
		return nil, fmt.Errorf("%w: interval duration must be positive, got %f", ErrInvalidMetric, interval.DurationMs)
	}
	if n := len(w.intervals); n > 0 && interval.Timestamp.Before(w.intervals[n-1].Timestamp) {
		return nil, fmt.Errorf("%w: timestamp %v precedes %v",
			ErrOutOfOrderInput, interval.Timestamp, w.intervals[n-1].Timestamp)
	}

	w.intervals = append(w.intervals, interval)

	// 相对最新时间戳淘汰过期间期
	cutoff := interval.Timestamp.Add(-w.windowDuration)
	i := 0
	for i < len(w.intervals) && w.intervals[i].Timestamp.Before(cutoff) {
		i++
	}
	w.intervals = w.intervals[i:]

	if len(w.intervals) < w.minSamples {
		return nil, nil
	}

	mean := w.mean()
	return &models.Sample{
		Timestamp: interval.Timestamp,
		HR:        60000.0 / mean,
		SDNN:      w.stdDev(mean),
		RMSSD:     w.rmssd(),
	}, nil
}

// Len 当前窗口内的间期数量
func (w *MetricWindow) Len() int {
	return len(w.intervals)
}

func (w *MetricWindow) mean() float64 {
	sum := 0.0
	for _, iv := range w.intervals {
		sum += iv.DurationMs
	}
	return sum / float64(len(w.intervals))
}

// stdDev 总体标准差：sqrt(mean((x-mean)^2))
// 所有间期相同时结果精确为 0
func (w *MetricWindow) stdDev(mean float64) float64 {
	sumSq := 0.0
	for _, iv := range w.intervals {
		d := iv.DurationMs - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(w.intervals)))
}

// rmssd 相邻间期差值的均方根：sqrt(mean(diff^2))
// 窗口至少含 2 个间期时才会被调用（minSamples >= 2 保证）
func (w *MetricWindow) rmssd() float64 {
	sumSq := 0.0
	for i := 1; i < len(w.intervals); i++ {
		d := w.intervals[i].DurationMs - w.intervals[i-1].DurationMs
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(w.intervals)-1))
}
