package packager

import (
	"encoding/json"
	"testing"

	"focusband-monitor/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type publishedMessage struct {
	topic   string
	qos     byte
	payload []byte
}

type fakePublisher struct {
	messages []publishedMessage
}

func (f *fakePublisher) Publish(topic string, qos byte, retained bool, payload []byte) error {
	f.messages = append(f.messages, publishedMessage{topic: topic, qos: qos, payload: payload})
	return nil
}

func TestMQTTPackager_PublishesMetrics(t *testing.T) {
	pub := &fakePublisher{}
	p := NewMQTTPackager(pub, "focusband", 1, zap.NewNop())

	snapshot := &models.MetricSnapshot{
		DeviceID:   "band-01",
		Timestamp:  1700000000000,
		HR:         75,
		SDNN:       50,
		Baseline:   49.5,
		AlertState: models.StateNormal,
	}

	require.NoError(t, p.Package(snapshot))

	// 非边沿样本只发布指标主题
	require.Len(t, pub.messages, 1)
	assert.Equal(t, "focusband/band-01/metrics", pub.messages[0].topic)
	assert.Equal(t, byte(1), pub.messages[0].qos)

	var decoded models.MetricSnapshot
	require.NoError(t, json.Unmarshal(pub.messages[0].payload, &decoded))
	assert.Equal(t, *snapshot, decoded)
}

func TestMQTTPackager_TriggerEdgePublishesHapticCommand(t *testing.T) {
	pub := &fakePublisher{}
	p := NewMQTTPackager(pub, "focusband", 1, zap.NewNop())

	snapshot := &models.MetricSnapshot{
		DeviceID:   "band-01",
		Timestamp:  1700000030000,
		HR:         75,
		SDNN:       35,
		Baseline:   50,
		AlertState: models.StateAlerting,
		AlertEdge:  true,
	}

	require.NoError(t, p.Package(snapshot))

	require.Len(t, pub.messages, 2)
	assert.Equal(t, "focusband/band-01/haptic", pub.messages[1].topic)

	var cmd HapticCommand
	require.NoError(t, json.Unmarshal(pub.messages[1].payload, &cmd))
	assert.Equal(t, "trigger", cmd.Action)
	assert.Equal(t, "band-01", cmd.DeviceID)
	assert.Equal(t, 35.0, cmd.SDNN)
}

func TestMQTTPackager_ClearEdgePublishesClearCommand(t *testing.T) {
	pub := &fakePublisher{}
	p := NewMQTTPackager(pub, "focusband", 1, zap.NewNop())

	snapshot := &models.MetricSnapshot{
		DeviceID:   "band-01",
		Timestamp:  1700000090000,
		SDNN:       48,
		Baseline:   50,
		AlertState: models.StateNormal,
		AlertEdge:  true,
	}

	require.NoError(t, p.Package(snapshot))

	require.Len(t, pub.messages, 2)

	var cmd HapticCommand
	require.NoError(t, json.Unmarshal(pub.messages[1].payload, &cmd))
	assert.Equal(t, "clear", cmd.Action)
}
