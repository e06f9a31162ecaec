package consumer

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"focusband-monitor/internal/config"
	"focusband-monitor/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakePackager struct {
	snapshots []*models.MetricSnapshot
}

func (f *fakePackager) Package(snapshot *models.MetricSnapshot) error {
	f.snapshots = append(f.snapshots, snapshot)
	return nil
}

type fakeRecorder struct {
	records []*models.MetricSnapshot
	events  []*models.AlertEvent
	cleared []string
}

func (f *fakeRecorder) AppendMetricRecord(ctx context.Context, snapshot *models.MetricSnapshot) error {
	f.records = append(f.records, snapshot)
	return nil
}

func (f *fakeRecorder) InsertAlertEvent(ctx context.Context, event *models.AlertEvent) error {
	f.events = append(f.events, event)
	return nil
}

func (f *fakeRecorder) ClearAlertEvent(ctx context.Context, deviceID string, clearedAt time.Time) error {
	f.cleared = append(f.cleared, deviceID)
	return nil
}

func testConsumerConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Pipeline = config.PipelineConfig{
		WindowDuration:    60 * time.Second,
		MinSamples:        2,
		BaselineAlpha:     0.1,
		LowRatioThreshold: 0.8,
		SustainDuration:   30 * time.Second,
	}
	cfg.Stream.Name = "focusband:intervals"
	cfg.Stream.ConsumerGroup = "focusband-monitor"
	cfg.Stream.ConsumerName = "monitor-test"
	cfg.Stream.BatchSize = 10
	cfg.Cache.KeyPrefix = "focusband:device:"
	cfg.Cache.Suffix = ":metrics"
	cfg.Cache.TTL = 60
	return cfg
}

func setupTestConsumer(t *testing.T, cfg *config.Config) (*StreamConsumer, *fakePackager, *fakeRecorder, *CacheManager) {
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	logger := zap.NewNop()
	cache := NewCacheManager(cfg, redisClient, logger)
	pack := &fakePackager{}
	rec := &fakeRecorder{}
	c := NewStreamConsumer(cfg, redisClient, pack, rec, cache, logger)

	return c, pack, rec, cache
}

func intervalStreamMessage(t *testing.T, deviceID string, timestampMs int64, intervalMs float64) StreamMessage {
	msg := IntervalMessage{
		DeviceID:    deviceID,
		TimestampMs: timestampMs,
		IntervalMs:  intervalMs,
	}
	data, err := json.Marshal(msg)
	require.NoError(t, err)

	return StreamMessage{
		Stream: "focusband:intervals",
		ID:     "1-0",
		Values: map[string]interface{}{"data": string(data)},
	}
}

func TestProcessMessage_NoSnapshotBeforeMinSamples(t *testing.T) {
	c, pack, rec, _ := setupTestConsumer(t, testConsumerConfig())
	ctx := context.Background()

	err := c.processMessage(ctx, intervalStreamMessage(t, "band-01", 1700000000000, 800))
	require.NoError(t, err)

	// 窗口数据不足：无快照、无落库
	assert.Empty(t, pack.snapshots)
	assert.Empty(t, rec.records)
}

func TestProcessMessage_ProducesSnapshot(t *testing.T) {
	c, pack, rec, cache := setupTestConsumer(t, testConsumerConfig())
	ctx := context.Background()

	require.NoError(t, c.processMessage(ctx, intervalStreamMessage(t, "band-01", 1700000000000, 750)))
	require.NoError(t, c.processMessage(ctx, intervalStreamMessage(t, "band-01", 1700000001000, 850)))

	require.Len(t, pack.snapshots, 1)
	snapshot := pack.snapshots[0]
	assert.Equal(t, "band-01", snapshot.DeviceID)
	assert.InDelta(t, 75.0, snapshot.HR, 1e-9)
	assert.InDelta(t, 50.0, snapshot.SDNN, 1e-9)
	assert.InDelta(t, 100.0, snapshot.RMSSD, 1e-9)
	assert.Equal(t, models.StateNormal, snapshot.AlertState)

	// 落库与缓存同步更新
	require.Len(t, rec.records, 1)
	cached, err := cache.GetSnapshot("band-01")
	require.NoError(t, err)
	assert.Equal(t, snapshot, cached)
}

func TestProcessMessage_OutOfOrderDroppedNotFatal(t *testing.T) {
	c, pack, _, _ := setupTestConsumer(t, testConsumerConfig())
	ctx := context.Background()

	require.NoError(t, c.processMessage(ctx, intervalStreamMessage(t, "band-01", 1700000001000, 800)))

	// 乱序消息被丢弃且不算失败
	err := c.processMessage(ctx, intervalStreamMessage(t, "band-01", 1700000000000, 800))
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.metrics.GetSnapshot().MessagesSkipped)

	// 管线仍然存活
	require.NoError(t, c.processMessage(ctx, intervalStreamMessage(t, "band-01", 1700000002000, 800)))
	assert.Len(t, pack.snapshots, 1)
}

func TestProcessMessage_InvalidMetricFailsPipeline(t *testing.T) {
	c, pack, _, _ := setupTestConsumer(t, testConsumerConfig())
	ctx := context.Background()

	// 非正间期时长属于契约违反，对该设备的管线实例致命
	err := c.processMessage(ctx, intervalStreamMessage(t, "band-01", 1700000000000, 0))
	assert.Error(t, err)
	assert.True(t, c.failed["band-01"])

	// 后续该设备的消息直接跳过
	require.NoError(t, c.processMessage(ctx, intervalStreamMessage(t, "band-01", 1700000001000, 800)))
	assert.Empty(t, pack.snapshots)

	// 其他设备不受影响
	require.NoError(t, c.processMessage(ctx, intervalStreamMessage(t, "band-02", 1700000000000, 750)))
	require.NoError(t, c.processMessage(ctx, intervalStreamMessage(t, "band-02", 1700000001000, 850)))
	assert.Len(t, pack.snapshots, 1)
}

func TestProcessMessage_ParseErrors(t *testing.T) {
	c, _, _, _ := setupTestConsumer(t, testConsumerConfig())
	ctx := context.Background()

	err := c.processMessage(ctx, StreamMessage{ID: "1-0", Values: map[string]interface{}{}})
	assert.Error(t, err)

	err = c.processMessage(ctx, StreamMessage{ID: "1-1", Values: map[string]interface{}{"data": "not-json"}})
	assert.Error(t, err)

	err = c.processMessage(ctx, StreamMessage{ID: "1-2", Values: map[string]interface{}{"data": `{"timestamp_ms":1,"interval_ms":800}`}})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "device_id")

	assert.Equal(t, int64(3), c.metrics.GetSnapshot().ErrorsParse)
}

func TestProcessMessage_AlertLifecyclePersisted(t *testing.T) {
	cfg := testConsumerConfig()
	cfg.Pipeline.WindowDuration = 5 * time.Second
	cfg.Pipeline.SustainDuration = 3 * time.Second
	seed := 50.0
	cfg.Pipeline.BaselineSeed = &seed

	c, _, rec, _ := setupTestConsumer(t, cfg)
	ctx := context.Background()

	baseMs := int64(1700000000000)

	// 种子基线 50ms，±10ms 间期使 SDNN≈10（比值 0.2），3 秒后触发报警
	durations := []float64{790, 810, 790, 810, 790, 810}
	for i, d := range durations {
		require.NoError(t, c.processMessage(ctx, intervalStreamMessage(t, "band-01", baseMs+int64(i)*1000, d)))
	}

	require.Len(t, rec.events, 1)
	event := rec.events[0]
	assert.Equal(t, "band-01", event.DeviceID)
	assert.NotEmpty(t, event.EventID)
	assert.Less(t, event.Ratio, 0.8)
	assert.Empty(t, rec.cleared)

	// 高变异间期使比值恢复到阈值之上，报警清除
	require.NoError(t, c.processMessage(ctx, intervalStreamMessage(t, "band-01", baseMs+6000, 500)))
	require.NoError(t, c.processMessage(ctx, intervalStreamMessage(t, "band-01", baseMs+7000, 1100)))

	assert.Equal(t, []string{"band-01"}, rec.cleared)
	assert.Len(t, rec.events, 1)
}
