package consumer

import (
	"testing"

	"focusband-monitor/internal/config"
	"focusband-monitor/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestCache(t *testing.T) (*miniredis.Miniredis, *CacheManager) {
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	cfg := &config.Config{}
	cfg.Cache.KeyPrefix = "focusband:device:"
	cfg.Cache.Suffix = ":metrics"
	cfg.Cache.TTL = 60

	logger := zap.NewNop()
	return mr, NewCacheManager(cfg, redisClient, logger)
}

func TestCacheManager_UpdateAndGetSnapshot(t *testing.T) {
	mr, cache := setupTestCache(t)

	snapshot := &models.MetricSnapshot{
		DeviceID:   "band-01",
		Timestamp:  1700000000000,
		HR:         75,
		SDNN:       50,
		Baseline:   49.5,
		AlertState: models.StateNormal,
	}

	require.NoError(t, cache.UpdateSnapshot("band-01", snapshot))

	got, err := cache.GetSnapshot("band-01")
	require.NoError(t, err)
	assert.Equal(t, snapshot, got)

	// 键带 TTL
	assert.Greater(t, mr.TTL("focusband:device:band-01:metrics").Seconds(), 0.0)
}

func TestCacheManager_GetSnapshot_NotFound(t *testing.T) {
	_, cache := setupTestCache(t)

	_, err := cache.GetSnapshot("band-unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "snapshot not found")
}
