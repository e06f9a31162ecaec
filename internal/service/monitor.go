package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"focusband-monitor/internal/config"
	"focusband-monitor/internal/consumer"
	"focusband-monitor/internal/models"
	"focusband-monitor/internal/mqtt"
	"focusband-monitor/internal/packager"
	"focusband-monitor/internal/repository"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// MonitorService 压力监测服务（整合各层）
type MonitorService struct {
	config      *config.Config
	db          *sql.DB
	redisClient *redis.Client
	mqttClient  *mqtt.Client
	logger      *zap.Logger

	// 各层组件
	metricsRepo     *repository.MetricsRepository
	alertEventsRepo *repository.AlertEventsRepository
	cacheManager    *consumer.CacheManager
	packager        *packager.MQTTPackager
	streamConsumer  *consumer.StreamConsumer
}

// metricsRecorder 组合两个仓库，实现 consumer.Recorder
type metricsRecorder struct {
	metrics *repository.MetricsRepository
	alerts  *repository.AlertEventsRepository
}

func (r *metricsRecorder) AppendMetricRecord(ctx context.Context, snapshot *models.MetricSnapshot) error {
	return r.metrics.AppendMetricRecord(ctx, snapshot)
}

func (r *metricsRecorder) InsertAlertEvent(ctx context.Context, event *models.AlertEvent) error {
	return r.alerts.InsertAlertEvent(ctx, event)
}

func (r *metricsRecorder) ClearAlertEvent(ctx context.Context, deviceID string, clearedAt time.Time) error {
	return r.alerts.ClearAlertEvent(ctx, deviceID, clearedAt)
}

// NewMonitorService 创建压力监测服务
func NewMonitorService(cfg *config.Config, logger *zap.Logger) (*MonitorService, error) {
	// 1. 连接数据库
	db, err := sql.Open("postgres", cfg.Database.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// 2. 连接 Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	// 3. 连接 MQTT
	mqttClient, err := mqtt.NewClient(&cfg.MQTT, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect mqtt: %w", err)
	}

	// 4. 创建 Repository 层
	metricsRepo := repository.NewMetricsRepository(db, logger)
	alertEventsRepo := repository.NewAlertEventsRepository(db, logger)

	// 5. 创建缓存和打包器
	cacheManager := consumer.NewCacheManager(cfg, redisClient, logger)
	mqttPackager := packager.NewMQTTPackager(mqttClient, cfg.Publish.TopicPrefix, cfg.MQTT.QoS, logger)

	// 6. 创建间期流消费者
	recorder := &metricsRecorder{
		metrics: metricsRepo,
		alerts:  alertEventsRepo,
	}
	streamConsumer := consumer.NewStreamConsumer(
		cfg,
		redisClient,
		mqttPackager,
		recorder,
		cacheManager,
		logger,
	)

	return &MonitorService{
		config:          cfg,
		db:              db,
		redisClient:     redisClient,
		mqttClient:      mqttClient,
		logger:          logger,
		metricsRepo:     metricsRepo,
		alertEventsRepo: alertEventsRepo,
		cacheManager:    cacheManager,
		packager:        mqttPackager,
		streamConsumer:  streamConsumer,
	}, nil
}

// Start 启动服务
func (s *MonitorService) Start(ctx context.Context) error {
	s.logger.Info("Starting monitor service",
		zap.String("stream", s.config.Stream.Name),
		zap.Duration("window_duration", s.config.Pipeline.WindowDuration),
		zap.Float64("low_ratio_threshold", s.config.Pipeline.LowRatioThreshold),
		zap.Duration("sustain_duration", s.config.Pipeline.SustainDuration),
	)

	return s.streamConsumer.Start(ctx)
}

// Stop 停止服务
func (s *MonitorService) Stop() error {
	s.logger.Info("Stopping monitor service")

	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close database",
			zap.Error(err),
		)
	}

	if err := s.redisClient.Close(); err != nil {
		s.logger.Error("Failed to close redis",
			zap.Error(err),
		)
	}

	s.mqttClient.Disconnect()

	return nil
}
