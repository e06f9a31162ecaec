package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"focusband-monitor/internal/hrv"
)

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MQTTConfig MQTT配置
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      byte
}

// PipelineConfig 指标管线配置面
// 全部数值在 Load 时严格校验，非法值直接使启动失败，绝不静默修正
type PipelineConfig struct {
	WindowDuration    time.Duration // 滚动窗口时长，默认 60s
	MinSamples        int           // 产出样本所需的最小间期数，默认 2
	BaselineAlpha     float64       // 基线 EMA 平滑系数，默认 0.1
	BaselineSeed      *float64      // 可选的基线种子（毫秒），未设置时用首个样本
	LowRatioThreshold float64       // 低比值阈值，默认 0.8
	SustainDuration   time.Duration // 触发报警的持续低谷时长，默认 30s
	RecoveryDuration  time.Duration // 清除报警的持续恢复时长，默认 0（立即清除）
}

// Config 服务配置
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	MQTT     MQTTConfig
	Pipeline PipelineConfig

	// 间期流消费配置
	Stream struct {
		Name          string // 间期流名称，如 "focusband:intervals"
		ConsumerGroup string
		ConsumerName  string
		BatchSize     int64
	}

	// 实时指标快照缓存配置
	Cache struct {
		KeyPrefix string // 如 "focusband:device:"
		Suffix    string // 如 ":metrics"
		TTL       int    // 秒
	}

	// 指标发布配置
	Publish struct {
		TopicPrefix string // 如 "focusband"，实际主题为 <prefix>/<device_id>/metrics 和 /haptic
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 从环境变量加载配置（带默认值）并校验
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	if cfg.Database.Port, err = getEnvInt("DB_PORT", 5432); err != nil {
		return nil, err
	}
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "focusband")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	if cfg.Redis.DB, err = getEnvInt("REDIS_DB", 0); err != nil {
		return nil, err
	}

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "focusband-monitor")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.QoS = 1

	if cfg.Pipeline, err = loadPipelineConfig(); err != nil {
		return nil, err
	}

	cfg.Stream.Name = getEnv("STREAM_NAME", "focusband:intervals")
	cfg.Stream.ConsumerGroup = getEnv("STREAM_CONSUMER_GROUP", "focusband-monitor")
	cfg.Stream.ConsumerName = getEnv("STREAM_CONSUMER_NAME", "monitor-1")
	cfg.Stream.BatchSize = 10

	cfg.Cache.KeyPrefix = getEnv("CACHE_KEY_PREFIX", "focusband:device:")
	cfg.Cache.Suffix = ":metrics"
	cfg.Cache.TTL = 60 // 60秒

	cfg.Publish.TopicPrefix = getEnv("PUBLISH_TOPIC_PREFIX", "focusband")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

// loadPipelineConfig 加载并校验管线配置
func loadPipelineConfig() (PipelineConfig, error) {
	p := PipelineConfig{}

	var err error
	if p.WindowDuration, err = getEnvDuration("WINDOW_DURATION", 60*time.Second); err != nil {
		return p, err
	}
	if p.SustainDuration, err = getEnvDuration("SUSTAIN_DURATION", 30*time.Second); err != nil {
		return p, err
	}
	if p.RecoveryDuration, err = getEnvDuration("RECOVERY_DURATION", 0); err != nil {
		return p, err
	}

	if p.MinSamples, err = getEnvInt("MIN_SAMPLES", 2); err != nil {
		return p, err
	}
	if p.BaselineAlpha, err = getEnvFloat("BASELINE_ALPHA", 0.1); err != nil {
		return p, err
	}
	if p.LowRatioThreshold, err = getEnvFloat("LOW_RATIO_THRESHOLD", 0.8); err != nil {
		return p, err
	}

	if seedStr := os.Getenv("BASELINE_SEED"); seedStr != "" {
		seed, err := strconv.ParseFloat(seedStr, 64)
		if err != nil {
			return p, fmt.Errorf("%w: invalid BASELINE_SEED %q", hrv.ErrInvalidConfiguration, seedStr)
		}
		p.BaselineSeed = &seed
	}

	return p, p.validate()
}

// validate 数值校验，与管线组件构造时的校验一致
func (p *PipelineConfig) validate() error {
	if p.WindowDuration <= 0 {
		return fmt.Errorf("%w: window duration must be positive, got %v", hrv.ErrInvalidConfiguration, p.WindowDuration)
	}
	if p.MinSamples < 2 {
		return fmt.Errorf("%w: min samples must be >= 2, got %d", hrv.ErrInvalidConfiguration, p.MinSamples)
	}
	if p.BaselineAlpha <= 0 || p.BaselineAlpha > 1 {
		return fmt.Errorf("%w: baseline alpha must be in (0,1], got %f", hrv.ErrInvalidConfiguration, p.BaselineAlpha)
	}
	if p.BaselineSeed != nil && *p.BaselineSeed <= 0 {
		return fmt.Errorf("%w: baseline seed must be positive, got %f", hrv.ErrInvalidConfiguration, *p.BaselineSeed)
	}
	if p.LowRatioThreshold <= 0 || p.LowRatioThreshold > 1 {
		return fmt.Errorf("%w: low ratio threshold must be in (0,1], got %f", hrv.ErrInvalidConfiguration, p.LowRatioThreshold)
	}
	if p.SustainDuration <= 0 {
		return fmt.Errorf("%w: sustain duration must be positive, got %v", hrv.ErrInvalidConfiguration, p.SustainDuration)
	}
	if p.RecoveryDuration < 0 {
		return fmt.Errorf("%w: recovery duration must be non-negative, got %v", hrv.ErrInvalidConfiguration, p.RecoveryDuration)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s %q", hrv.ErrInvalidConfiguration, key, value)
	}
	return n, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s %q", hrv.ErrInvalidConfiguration, key, value)
	}
	return f, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s %q", hrv.ErrInvalidConfiguration, key, value)
	}
	return d, nil
}
