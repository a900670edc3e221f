package notifier

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	mqttcommon "zigbee-zones/internal/common/mqtt"
	"zigbee-zones/internal/models"
)

// MQTTNotifier 把区域增量事件发布到 MQTT 状态主题
//
// 默认主题 {prefix}/{zone_name}/state；区域配置了
// mqtt_topic_override 时使用覆盖主题（delta.Topic 携带）
type MQTTNotifier struct {
	client      *mqttcommon.Client
	topicPrefix string
	qos         byte
	logger      *zap.Logger
}

// NewMQTTNotifier 创建MQTT通知器
func NewMQTTNotifier(client *mqttcommon.Client, topicPrefix string, qos byte, logger *zap.Logger) *MQTTNotifier {
	return &MQTTNotifier{
		client:      client,
		topicPrefix: topicPrefix,
		qos:         qos,
		logger:      logger,
	}
}

// PublishDelta 实现 Notifier
func (n *MQTTNotifier) PublishDelta(ctx context.Context, delta *models.ZoneDelta) error {
	payload, err := json.Marshal(delta)
	if err != nil {
		return fmt.Errorf("failed to marshal zone delta: %w", err)
	}

	topic := delta.Topic
	if topic == "" {
		topic = fmt.Sprintf("%s/%s/state", n.topicPrefix, delta.ZoneName)
	}

	// 状态变更消息保留（retained），订阅者上线即可拿到最后状态
	retained := delta.HasStateChange()

	if err := n.client.Publish(topic, n.qos, retained, payload); err != nil {
		return fmt.Errorf("failed to publish zone delta to MQTT: %w", err)
	}

	n.logger.Debug("Published zone delta to MQTT",
		zap.String("zone", delta.ZoneName),
		zap.String("topic", topic),
		zap.Uint64("seq", delta.Seq),
	)
	return nil
}
