package packager

import (
	"encoding/json"
	"fmt"

	"focusband-monitor/internal/models"

	"go.uber.org/zap"
)

// Publisher MQTT发布能力抽象（由 mqtt.Client 实现）
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// HapticCommand 触觉执行器指令（报警边沿时发布，每次事件恰好一条）
type HapticCommand struct {
	Action    string  `json:"action"` // "trigger" 或 "clear"
	DeviceID  string  `json:"device_id"`
	Timestamp int64   `json:"timestamp"`
	SDNN      float64 `json:"sdnn_ms"`
	Baseline  float64 `json:"baseline_ms"`
}

// MQTTPackager 指标打包器
// 每个处理完成的样本发布到 <prefix>/<device_id>/metrics；
// 报警边沿额外发布执行器指令到 <prefix>/<device_id>/haptic
type MQTTPackager struct {
	publisher   Publisher
	topicPrefix string
	qos         byte
	logger      *zap.Logger
}

// NewMQTTPackager 创建MQTT指标打包器
func NewMQTTPackager(publisher Publisher, topicPrefix string, qos byte, logger *zap.Logger) *MQTTPackager {
	return &MQTTPackager{
		publisher:   publisher,
		topicPrefix: topicPrefix,
		qos:         qos,
		logger:      logger,
	}
}

// Package 发布一个指标快照
func (p *MQTTPackager) Package(snapshot *models.MetricSnapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal metric snapshot: %w", err)
	}

	metricsTopic := fmt.Sprintf("%s/%s/metrics", p.topicPrefix, snapshot.DeviceID)
	if err := p.publisher.Publish(metricsTopic, p.qos, false, payload); err != nil {
		return fmt.Errorf("failed to publish metrics: %w", err)
	}

	if !snapshot.AlertEdge {
		return nil
	}

	// 边沿样本：向执行器发布触发/清除指令
	action := "clear"
	if snapshot.AlertState == models.StateAlerting {
		action = "trigger"
	}

	cmd := HapticCommand{
		Action:    action,
		DeviceID:  snapshot.DeviceID,
		Timestamp: snapshot.Timestamp,
		SDNN:      snapshot.SDNN,
		Baseline:  snapshot.Baseline,
	}
	cmdPayload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("failed to marshal haptic command: %w", err)
	}

	hapticTopic := fmt.Sprintf("%s/%s/haptic", p.topicPrefix, snapshot.DeviceID)
	if err := p.publisher.Publish(hapticTopic, p.qos, false, cmdPayload); err != nil {
		return fmt.Errorf("failed to publish haptic command: %w", err)
	}

	p.logger.Info("Haptic command published",
		zap.String("device_id", snapshot.DeviceID),
		zap.String("action", action),
	)

	return nil
}
