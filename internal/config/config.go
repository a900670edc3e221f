package config

import (
	"os"
	"strconv"

	commonconfig "zigbee-zones/internal/common/config"
	"zigbee-zones/internal/models"
)

// Config 区域引擎服务配置
type Config struct {
	Database commonconfig.DatabaseConfig
	Redis    commonconfig.RedisConfig
	MQTT     commonconfig.MQTTConfig

	// 区域引擎特定配置
	Zones struct {
		Topics struct {
			LinkQuality string // 链路质量订阅主题，如 "zigbee/+/linkquality"
			StatePrefix string // 状态发布主题前缀，如 "zones"
		}
		DeltaStream    string // Redis Stream 名称
		WebhookURL     string // 自动化回调地址（为空时不启用）
		HistoryEnabled bool   // 是否把状态迁移写入 PostgreSQL

		// Defaults 新建区域未显式给出配置时的缺省值
		Defaults models.ZoneConfig
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	// 从环境变量加载（带默认值）
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = 5432
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "zigbee")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.LoadFromEnv("DB")

	cfg.Redis.Addr = "localhost:6379"
	cfg.Redis.DB = 0
	cfg.Redis.LoadFromEnv("REDIS")

	cfg.MQTT.Broker = "tcp://localhost:1883"
	cfg.MQTT.ClientID = "zigbee-zones"
	cfg.MQTT.QoS = 1
	cfg.MQTT.LoadFromEnv("MQTT")

	// 区域引擎配置
	cfg.Zones.Topics.LinkQuality = getEnv("ZONES_TOPIC_LINKQUALITY", "zigbee/+/linkquality")
	cfg.Zones.Topics.StatePrefix = getEnv("ZONES_TOPIC_STATE_PREFIX", "zones")
	cfg.Zones.DeltaStream = getEnv("ZONES_DELTA_STREAM", "zones:delta:stream")
	cfg.Zones.WebhookURL = getEnv("ZONES_WEBHOOK_URL", "")
	cfg.Zones.HistoryEnabled = getEnvBool("ZONES_HISTORY_ENABLED", false)

	// 新建区域的缺省检测参数
	defaults := models.DefaultZoneConfig()
	defaults.DeviationThreshold = getEnvFloat("ZONES_DEVIATION_THRESHOLD", defaults.DeviationThreshold)
	defaults.VarianceThreshold = getEnvFloat("ZONES_VARIANCE_THRESHOLD", defaults.VarianceThreshold)
	defaults.MinLinksTriggered = getEnvInt("ZONES_MIN_LINKS_TRIGGERED", defaults.MinLinksTriggered)
	defaults.CalibrationTime = getEnvInt("ZONES_CALIBRATION_TIME", defaults.CalibrationTime)
	defaults.ClearDelay = getEnvInt("ZONES_CLEAR_DELAY", defaults.ClearDelay)
	defaults.FullRecalibrationOnChange = getEnvBool("ZONES_FULL_RECALIBRATION_ON_CHANGE", defaults.FullRecalibrationOnChange)
	cfg.Zones.Defaults = defaults

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
