// Package notifier 提供区域变更事件的发布通道
//
// 引擎核心只依赖一个窄的 emit 能力（engine.DeltaPublisher），
// 具体投递方式由各个 sink 实现：
// - MQTTNotifier: 发布到 MQTT 状态主题（供 Home Assistant / 自动化订阅）
// - StreamNotifier: 追加到 Redis Stream（供下游服务消费）
// - WebhookNotifier: POST 到自动化回调地址
// - MultiNotifier: 顺序扇出到多个 sink
package notifier

import (
	"context"

	"go.uber.org/zap"

	"zigbee-zones/internal/models"
)

// Notifier 变更事件发布接口
type Notifier interface {
	PublishDelta(ctx context.Context, delta *models.ZoneDelta) error
}

// MultiNotifier 顺序扇出到多个 sink
//
// 单个 sink 失败只记录日志，不影响其余 sink；
// 顺序投递保持同一区域的事件次序
type MultiNotifier struct {
	sinks  []Notifier
	logger *zap.Logger
}

// NewMultiNotifier 创建扇出通知器（nil sink 被忽略）
func NewMultiNotifier(logger *zap.Logger, sinks ...Notifier) *MultiNotifier {
	m := &MultiNotifier{logger: logger}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// PublishDelta 实现 Notifier
func (m *MultiNotifier) PublishDelta(ctx context.Context, delta *models.ZoneDelta) error {
	for _, s := range m.sinks {
		if err := s.PublishDelta(ctx, delta); err != nil {
			m.logger.Error("Notifier sink failed",
				zap.String("zone", delta.ZoneName),
				zap.Uint64("seq", delta.Seq),
				zap.Error(err),
			)
			// 继续投递其余 sink，不中断
		}
	}
	return nil
}
