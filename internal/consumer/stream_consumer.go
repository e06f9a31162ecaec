package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"focusband-monitor/internal/config"
	"focusband-monitor/internal/hrv"
	"focusband-monitor/internal/models"
	"focusband-monitor/internal/pipeline"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Packager 指标打包器接口（消费 {时间戳, HR, SDNN, 基线, 报警状态, 边沿}，
// 负责编码和外发，见 packager 包的 MQTT 实现）
type Packager interface {
	Package(snapshot *models.MetricSnapshot) error
}

// Recorder 指标持久化接口（见 repository 包的 Postgres 实现）
type Recorder interface {
	AppendMetricRecord(ctx context.Context, snapshot *models.MetricSnapshot) error
	InsertAlertEvent(ctx context.Context, event *models.AlertEvent) error
	ClearAlertEvent(ctx context.Context, deviceID string, clearedAt time.Time) error
}

// IntervalMessage 间期流消息（设备端经无线传输投递到 Redis Streams）
type IntervalMessage struct {
	DeviceID    string  `json:"device_id"`
	TimestampMs int64   `json:"timestamp_ms"`
	IntervalMs  float64 `json:"interval_ms"`
}

// Metrics 监控指标
type Metrics struct {
	mu sync.RWMutex

	// 消息处理统计
	MessagesProcessed int64 // 处理的消息总数
	MessagesSucceeded int64 // 成功处理的消息数
	MessagesFailed    int64 // 处理失败的消息数
	MessagesSkipped   int64 // 跳过的消息数（乱序间期、已失效的管线等）

	// 错误分类统计
	ErrorsParse    int64 // 解析错误
	ErrorsPipeline int64 // 管线契约违反（对该设备管线致命）
	ErrorsCache    int64 // 缓存更新失败
	ErrorsPublish  int64 // 指标发布失败
	ErrorsPersist  int64 // 落库失败

	// 性能指标
	TotalProcessingTime time.Duration
	LastProcessTime     time.Time

	StartTime time.Time
}

// GetSnapshot 获取指标快照（线程安全）
func (m *Metrics) GetSnapshot() Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Metrics{
		MessagesProcessed:   m.MessagesProcessed,
		MessagesSucceeded:   m.MessagesSucceeded,
		MessagesFailed:      m.MessagesFailed,
		MessagesSkipped:     m.MessagesSkipped,
		ErrorsParse:         m.ErrorsParse,
		ErrorsPipeline:      m.ErrorsPipeline,
		ErrorsCache:         m.ErrorsCache,
		ErrorsPublish:       m.ErrorsPublish,
		ErrorsPersist:       m.ErrorsPersist,
		TotalProcessingTime: m.TotalProcessingTime,
		LastProcessTime:     m.LastProcessTime,
		StartTime:           m.StartTime,
	}
}

// IncrementProcessed 增加处理计数
func (m *Metrics) IncrementProcessed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MessagesProcessed++
}

// IncrementSucceeded 增加成功计数
func (m *Metrics) IncrementSucceeded(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MessagesSucceeded++
	m.TotalProcessingTime += duration
	m.LastProcessTime = time.Now()
}

// IncrementFailed 增加失败计数
func (m *Metrics) IncrementFailed(errorType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MessagesFailed++
	switch errorType {
	case "parse":
		m.ErrorsParse++
	case "pipeline":
		m.ErrorsPipeline++
	case "cache":
		m.ErrorsCache++
	case "publish":
		m.ErrorsPublish++
	case "persist":
		m.ErrorsPersist++
	}
}

// IncrementSkipped 增加跳过计数
func (m *Metrics) IncrementSkipped() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MessagesSkipped++
}

// StreamConsumer 间期流消费者
// 每个设备维护一个独立的管线实例；管线本身是单线程同步的，
// 消费循环串行处理消息，天然满足边界互斥要求
type StreamConsumer struct {
	config      *config.Config
	redisClient *redis.Client
	packager    Packager
	recorder    Recorder
	cache       *CacheManager
	logger      *zap.Logger
	metrics     *Metrics

	pipelines map[string]*pipeline.Pipeline
	// 发生契约违反（InvalidMetric）的设备管线，后续消息直接跳过
	failed map[string]bool
}

// NewStreamConsumer 创建间期流消费者
func NewStreamConsumer(
	cfg *config.Config,
	redisClient *redis.Client,
	packager Packager,
	recorder Recorder,
	cache *CacheManager,
	logger *zap.Logger,
) *StreamConsumer {
	return &StreamConsumer{
		config:      cfg,
		redisClient: redisClient,
		packager:    packager,
		recorder:    recorder,
		cache:       cache,
		logger:      logger,
		metrics: &Metrics{
			StartTime: time.Now(),
		},
		pipelines: make(map[string]*pipeline.Pipeline),
		failed:    make(map[string]bool),
	}
}

// Start 启动消费者
func (c *StreamConsumer) Start(ctx context.Context) error {
	stream := c.config.Stream.Name
	if err := CreateConsumerGroup(ctx, c.redisClient, stream, c.config.Stream.ConsumerGroup); err != nil {
		return fmt.Errorf("failed to create consumer group for %s: %w", stream, err)
	}

	c.logger.Info("Stream consumer started",
		zap.String("consumer_group", c.config.Stream.ConsumerGroup),
		zap.String("consumer_name", c.config.Stream.ConsumerName),
		zap.String("stream", stream),
	)

	// 启动指标报告协程
	metricsCtx, metricsCancel := context.WithCancel(ctx)
	defer metricsCancel()
	go c.reportMetrics(metricsCtx)

	// 消费循环（指数退避）
	backoffDuration := time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
			if err := c.consumeStream(ctx, stream); err != nil {
				c.logger.Error("Failed to consume stream",
					zap.Error(err),
					zap.Duration("backoff", backoffDuration),
				)

				select {
				case <-ctx.Done():
					return nil
				case <-time.After(backoffDuration):
					backoffDuration *= 2
					if backoffDuration > maxBackoff {
						backoffDuration = maxBackoff
					}
				}
			} else {
				backoffDuration = time.Second
			}
		}
	}
}

// consumeStream 消费一批消息
func (c *StreamConsumer) consumeStream(ctx context.Context, stream string) error {
	messages, err := ReadFromStream(
		ctx,
		c.redisClient,
		stream,
		c.config.Stream.ConsumerGroup,
		c.config.Stream.ConsumerName,
		c.config.Stream.BatchSize,
	)
	if err != nil {
		return fmt.Errorf("failed to read from stream: %w", err)
	}

	for _, msg := range messages {
		c.metrics.IncrementProcessed()
		if err := c.processMessage(ctx, msg); err != nil {
			c.logger.Error("Failed to process message",
				zap.String("stream_id", msg.ID),
				zap.Error(err),
			)
			// 继续处理下一条消息，不中断
		}
	}

	return nil
}

// processMessage 处理单条间期消息
// 处理流程：解析 → 取该设备的管线 → 窗口/基线/状态机 → 缓存、发布、落库
// 乱序间期按规约丢弃并记录，不算处理失败
func (c *StreamConsumer) processMessage(ctx context.Context, msg StreamMessage) error {
	startTime := time.Now()

	var dataStr string
	if val, ok := msg.Values["data"]; ok {
		if str, ok := val.(string); ok {
			dataStr = str
		} else {
			c.metrics.IncrementFailed("parse")
			return fmt.Errorf("invalid data format in message")
		}
	} else {
		c.metrics.IncrementFailed("parse")
		return fmt.Errorf("missing data field in message")
	}

	var intervalMsg IntervalMessage
	if err := json.Unmarshal([]byte(dataStr), &intervalMsg); err != nil {
		c.metrics.IncrementFailed("parse")
		return fmt.Errorf("failed to unmarshal interval message: %w", err)
	}
	if intervalMsg.DeviceID == "" {
		c.metrics.IncrementFailed("parse")
		return fmt.Errorf("missing device_id in interval message")
	}

	if c.failed[intervalMsg.DeviceID] {
		c.metrics.IncrementSkipped()
		return nil
	}

	pipe, err := c.pipelineFor(intervalMsg.DeviceID)
	if err != nil {
		c.metrics.IncrementFailed("pipeline")
		return fmt.Errorf("failed to create pipeline for device %s: %w", intervalMsg.DeviceID, err)
	}

	interval := models.Interval{
		Timestamp:  time.UnixMilli(intervalMsg.TimestampMs),
		DurationMs: intervalMsg.IntervalMs,
	}

	result, err := pipe.Process(interval)
	if err != nil {
		if errors.Is(err, hrv.ErrOutOfOrderInput) {
			// 乱序：丢弃该样本，管线状态不变
			c.metrics.IncrementSkipped()
			c.logger.Warn("Dropping out-of-order interval",
				zap.String("device_id", intervalMsg.DeviceID),
				zap.Int64("timestamp_ms", intervalMsg.TimestampMs),
			)
			return nil
		}
		// 契约违反：该设备的管线实例失效
		c.failed[intervalMsg.DeviceID] = true
		c.metrics.IncrementFailed("pipeline")
		return fmt.Errorf("pipeline failed for device %s: %w", intervalMsg.DeviceID, err)
	}
	if result == nil {
		// 窗口数据尚不足
		c.metrics.IncrementSucceeded(time.Since(startTime))
		return nil
	}

	snapshot := &models.MetricSnapshot{
		DeviceID:   intervalMsg.DeviceID,
		Timestamp:  result.Timestamp.UnixMilli(),
		HR:         result.HR,
		SDNN:       result.SDNN,
		RMSSD:      result.RMSSD,
		Baseline:   result.Baseline,
		AlertState: result.State,
		AlertEdge:  result.AlertEdge,
	}

	if err := c.cache.UpdateSnapshot(intervalMsg.DeviceID, snapshot); err != nil {
		c.metrics.IncrementFailed("cache")
		return fmt.Errorf("failed to update snapshot cache: %w", err)
	}

	if err := c.packager.Package(snapshot); err != nil {
		c.metrics.IncrementFailed("publish")
		return fmt.Errorf("failed to package snapshot: %w", err)
	}

	if err := c.persist(ctx, snapshot); err != nil {
		c.metrics.IncrementFailed("persist")
		return err
	}

	c.metrics.IncrementSucceeded(time.Since(startTime))

	c.logger.Debug("Processed interval",
		zap.String("device_id", intervalMsg.DeviceID),
		zap.Float64("hr", snapshot.HR),
		zap.Float64("sdnn", snapshot.SDNN),
		zap.Float64("baseline", snapshot.Baseline),
		zap.String("alert_state", string(snapshot.AlertState)),
	)

	return nil
}

// persist 追加指标记录；边沿样本额外写入/回填报警事件
func (c *StreamConsumer) persist(ctx context.Context, snapshot *models.MetricSnapshot) error {
	if err := c.recorder.AppendMetricRecord(ctx, snapshot); err != nil {
		return fmt.Errorf("failed to append metric record: %w", err)
	}

	if !snapshot.AlertEdge {
		return nil
	}

	if snapshot.AlertState == models.StateAlerting {
		event := models.NewAlertEvent(snapshot)
		if err := c.recorder.InsertAlertEvent(ctx, event); err != nil {
			return fmt.Errorf("failed to insert alert event: %w", err)
		}
		return nil
	}

	if err := c.recorder.ClearAlertEvent(ctx, snapshot.DeviceID, time.UnixMilli(snapshot.Timestamp)); err != nil {
		return fmt.Errorf("failed to clear alert event: %w", err)
	}
	return nil
}

// pipelineFor 取（或创建）设备的管线实例
func (c *StreamConsumer) pipelineFor(deviceID string) (*pipeline.Pipeline, error) {
	if pipe, ok := c.pipelines[deviceID]; ok {
		return pipe, nil
	}

	pipe, err := pipeline.New(pipeline.Options{
		WindowDuration:    c.config.Pipeline.WindowDuration,
		MinSamples:        c.config.Pipeline.MinSamples,
		Alpha:             c.config.Pipeline.BaselineAlpha,
		BaselineSeed:      c.config.Pipeline.BaselineSeed,
		LowRatioThreshold: c.config.Pipeline.LowRatioThreshold,
		SustainDuration:   c.config.Pipeline.SustainDuration,
		RecoveryDuration:  c.config.Pipeline.RecoveryDuration,
	}, c.logger.With(zap.String("device_id", deviceID)))
	if err != nil {
		return nil, err
	}

	c.pipelines[deviceID] = pipe
	c.logger.Info("Pipeline created for device",
		zap.String("device_id", deviceID),
	)
	return pipe, nil
}

// reportMetrics 定期报告指标（每60秒）
func (c *StreamConsumer) reportMetrics(ctx context.Context) {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snapshot := c.metrics.GetSnapshot()
			uptime := time.Since(snapshot.StartTime)

			var avgProcessingTime time.Duration
			if snapshot.MessagesSucceeded > 0 {
				avgProcessingTime = snapshot.TotalProcessingTime / time.Duration(snapshot.MessagesSucceeded)
			}

			successRate := float64(0)
			if snapshot.MessagesProcessed > 0 {
				successRate = float64(snapshot.MessagesSucceeded) / float64(snapshot.MessagesProcessed) * 100
			}

			c.logger.Info("Metrics report",
				zap.Int64("messages_processed", snapshot.MessagesProcessed),
				zap.Int64("messages_succeeded", snapshot.MessagesSucceeded),
				zap.Int64("messages_failed", snapshot.MessagesFailed),
				zap.Int64("messages_skipped", snapshot.MessagesSkipped),
				zap.Float64("success_rate", successRate),
				zap.Int64("errors_parse", snapshot.ErrorsParse),
				zap.Int64("errors_pipeline", snapshot.ErrorsPipeline),
				zap.Int64("errors_cache", snapshot.ErrorsCache),
				zap.Int64("errors_publish", snapshot.ErrorsPublish),
				zap.Int64("errors_persist", snapshot.ErrorsPersist),
				zap.Duration("avg_processing_time", avgProcessingTime),
				zap.Duration("uptime", uptime),
			)
		}
	}
}
