package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"focusband-monitor/internal/config"
	"focusband-monitor/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// CacheManager 实时指标快照缓存管理器
// 每个设备的最新 MetricSnapshot 以 JSON 存入 Redis（带 TTL），供主机侧轮询读取
type CacheManager struct {
	config      *config.Config
	redisClient *redis.Client
	logger      *zap.Logger
}

// NewCacheManager 创建缓存管理器
func NewCacheManager(cfg *config.Config, redisClient *redis.Client, logger *zap.Logger) *CacheManager {
	return &CacheManager{
		config:      cfg,
		redisClient: redisClient,
		logger:      logger,
	}
}

// snapshotKey 构建快照缓存键，如 "focusband:device:band-01:metrics"
func (c *CacheManager) snapshotKey(deviceID string) string {
	return c.config.Cache.KeyPrefix + deviceID + c.config.Cache.Suffix
}

// UpdateSnapshot 写入设备的最新指标快照
func (c *CacheManager) UpdateSnapshot(deviceID string, snapshot *models.MetricSnapshot) error {
	jsonData, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	ctx := context.Background()
	ttl := time.Duration(c.config.Cache.TTL) * time.Second

	if err := c.redisClient.Set(ctx, c.snapshotKey(deviceID), jsonData, ttl).Err(); err != nil {
		return fmt.Errorf("failed to update snapshot cache: %w", err)
	}

	return nil
}

// GetSnapshot 读取设备的最新指标快照
func (c *CacheManager) GetSnapshot(deviceID string) (*models.MetricSnapshot, error) {
	ctx := context.Background()

	val, err := c.redisClient.Get(ctx, c.snapshotKey(deviceID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("snapshot not found for device %s", deviceID)
		}
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}

	var snapshot models.MetricSnapshot
	if err := json.Unmarshal([]byte(val), &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	return &snapshot, nil
}
