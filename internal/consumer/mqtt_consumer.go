package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	mqttcommon "zigbee-zones/internal/common/mqtt"
	"zigbee-zones/internal/config"
	"zigbee-zones/internal/engine"
	"zigbee-zones/internal/models"
)

// linkQualityMessage 链路质量上报载荷
//
// 邻居表上报（Mgmt_Lqi_rsp）和路由记录都归一成这个形式：
// 主题里的 reporter 与载荷里的 neighbor 构成无序设备对。
// rssi 和 lqi 至少一个存在；缺失的一方按线性映射换算补齐。
type linkQualityMessage struct {
	Neighbor  string `json:"neighbor"`
	RSSI      *int   `json:"rssi,omitempty"`
	LQI       *int   `json:"lqi,omitempty"`
	Timestamp *int64 `json:"timestamp,omitempty"`
}

// Stats 消费者处理统计
type Stats struct {
	MessagesProcessed uint64 `json:"messages_processed"`
	RSSICaptures      uint64 `json:"rssi_captures"`
}

// MQTTConsumer 链路质量 MQTT 消费者
//
// 订阅 zigbee/{reporter}/linkquality，把采样喂给区域注册表。
// 纯观察者：不修改消息流，解析失败只记日志。
type MQTTConsumer struct {
	config     *config.Config
	mqttClient *mqttcommon.Client
	registry   *engine.Registry
	logger     *zap.Logger

	messagesProcessed atomic.Uint64
	rssiCaptures      atomic.Uint64
}

// NewMQTTConsumer 创建MQTT消费者
func NewMQTTConsumer(
	cfg *config.Config,
	mqttClient *mqttcommon.Client,
	registry *engine.Registry,
	logger *zap.Logger,
) *MQTTConsumer {
	return &MQTTConsumer{
		config:     cfg,
		mqttClient: mqttClient,
		registry:   registry,
		logger:     logger,
	}
}

// Start 启动消费者
func (c *MQTTConsumer) Start(ctx context.Context) error {
	if err := c.mqttClient.Subscribe(c.config.Zones.Topics.LinkQuality, 1, c.handleMessage); err != nil {
		return fmt.Errorf("failed to subscribe to link quality topic: %w", err)
	}

	c.logger.Info("MQTT consumer started",
		zap.String("topic", c.config.Zones.Topics.LinkQuality),
	)
	return nil
}

// Stop 停止消费者
func (c *MQTTConsumer) Stop(ctx context.Context) error {
	if err := c.mqttClient.Unsubscribe(c.config.Zones.Topics.LinkQuality); err != nil {
		c.logger.Error("Failed to unsubscribe", zap.Error(err))
	}

	c.logger.Info("MQTT consumer stopped")
	return nil
}

// Stats 返回处理计数
func (c *MQTTConsumer) Stats() Stats {
	return Stats{
		MessagesProcessed: c.messagesProcessed.Load(),
		RSSICaptures:      c.rssiCaptures.Load(),
	}
}

// handleMessage 处理一条链路质量消息
func (c *MQTTConsumer) handleMessage(topic string, payload []byte) error {
	c.messagesProcessed.Add(1)

	// 1. 从主题提取上报设备
	// 主题格式: zigbee/{reporter_ieee}/linkquality
	parts := strings.Split(topic, "/")
	if len(parts) < 3 {
		return fmt.Errorf("invalid topic format: %s", topic)
	}
	reporter := parts[1]

	// 2. 解析载荷
	var msg linkQualityMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		c.logger.Error("Failed to unmarshal link quality message",
			zap.String("topic", topic),
			zap.Error(err),
		)
		return fmt.Errorf("failed to unmarshal message: %w", err)
	}
	if msg.Neighbor == "" {
		return fmt.Errorf("link quality message missing neighbor: %s", topic)
	}
	if msg.RSSI == nil && msg.LQI == nil {
		// 没有任何链路质量数据：忽略
		return nil
	}

	// 3. 缺失的一方按 LQI↔RSSI 线性映射补齐
	rssi := 0
	if msg.RSSI != nil {
		rssi = *msg.RSSI
	} else {
		rssi = models.LQIToRSSI(*msg.LQI)
	}

	// 4. 采样时间：载荷自带优先，否则取当前时间
	timestamp := time.Now()
	if msg.Timestamp != nil {
		timestamp = time.Unix(*msg.Timestamp, 0)
	}

	// 5. 喂给注册表（无区域匹配时是静默 no-op）
	c.registry.IngestSample(reporter, msg.Neighbor, rssi, timestamp)
	c.rssiCaptures.Add(1)

	c.logger.Debug("Captured link quality sample",
		zap.String("reporter", reporter),
		zap.String("neighbor", msg.Neighbor),
		zap.Int("rssi", rssi),
	)
	return nil
}
