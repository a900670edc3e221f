package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"zigbee-zones/internal/common/database"
	mqttcommon "zigbee-zones/internal/common/mqtt"
	rediscommon "zigbee-zones/internal/common/redis"
	"zigbee-zones/internal/config"
	"zigbee-zones/internal/consumer"
	"zigbee-zones/internal/engine"
	"zigbee-zones/internal/notifier"
	"zigbee-zones/internal/repository"
)

// ZonesService 区域引擎服务
//
// 组合注册表、采样消费者和事件发布通道；
// API 层通过 Registry() 访问查询/命令接口
type ZonesService struct {
	config     *config.Config
	logger     *zap.Logger
	db         *sql.DB
	redis      *redis.Client
	mqttClient *mqttcommon.Client
	registry   *engine.Registry
	consumer   *consumer.MQTTConsumer
}

// NewZonesService 创建区域引擎服务
func NewZonesService(cfg *config.Config, logger *zap.Logger) (*ZonesService, error) {
	// 初始化Redis
	redisClient := rediscommon.NewRedisClient(&cfg.Redis)
	if err := rediscommon.Ping(context.Background(), redisClient); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	// 初始化MQTT
	mqttClient, err := mqttcommon.NewClient(&cfg.MQTT, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT: %w", err)
	}

	// 状态迁移历史（可选）
	var db *sql.DB
	var recorder engine.TransitionRecorder
	if cfg.Zones.HistoryEnabled {
		db, err = database.NewPostgresDB(&cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		recorder = repository.NewZoneEventsRepository(db, logger)
	}

	// 事件发布通道：MQTT 状态主题 + Redis Stream (+ 可选 Webhook)
	sinks := []notifier.Notifier{
		notifier.NewMQTTNotifier(mqttClient, cfg.Zones.Topics.StatePrefix, cfg.MQTT.QoS, logger),
		notifier.NewStreamNotifier(redisClient, cfg.Zones.DeltaStream, logger),
	}
	if cfg.Zones.WebhookURL != "" {
		sinks = append(sinks, notifier.NewWebhookNotifier(cfg.Zones.WebhookURL, logger))
	}
	publisher := notifier.NewMultiNotifier(logger, sinks...)

	// 创建注册表
	registry := engine.NewRegistry(publisher, recorder, logger)

	// 创建消费者
	mqttConsumer := consumer.NewMQTTConsumer(cfg, mqttClient, registry, logger)

	return &ZonesService{
		config:     cfg,
		logger:     logger,
		db:         db,
		redis:      redisClient,
		mqttClient: mqttClient,
		registry:   registry,
		consumer:   mqttConsumer,
	}, nil
}

// Registry 返回区域注册表（API 层的查询/命令入口）
func (s *ZonesService) Registry() *engine.Registry {
	return s.registry
}

// ConsumerStats 返回采样消费统计
func (s *ZonesService) ConsumerStats() consumer.Stats {
	return s.consumer.Stats()
}

// Start 启动服务
func (s *ZonesService) Start(ctx context.Context) error {
	s.logger.Info("Starting zones service components")

	if err := s.consumer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start MQTT consumer: %w", err)
	}

	s.logger.Info("Zones service started successfully")
	return nil
}

// Stop 停止服务
func (s *ZonesService) Stop(ctx context.Context) error {
	s.logger.Info("Stopping zones service")

	// 停止Consumer
	if s.consumer != nil {
		if err := s.consumer.Stop(ctx); err != nil {
			s.logger.Error("Error stopping consumer", zap.Error(err))
		}
	}

	// 断开MQTT
	if s.mqttClient != nil {
		s.mqttClient.Disconnect()
	}

	// 关闭Redis
	if s.redis != nil {
		rediscommon.Close(s.redis)
	}

	// 关闭数据库
	if s.db != nil {
		database.Close(s.db)
	}

	s.logger.Info("Zones service stopped")
	return nil
}
