package notifier

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"zigbee-zones/internal/models"
)

// WebhookNotifier 把区域增量事件 POST 到自动化回调地址
//
// 只推送包含状态变更的事件：回调方关心占用翻转，
// 链路统计增量走 MQTT/Stream 通道
type WebhookNotifier struct {
	httpClient *resty.Client
	url        string
	logger     *zap.Logger
}

// NewWebhookNotifier 创建 Webhook 通知器
func NewWebhookNotifier(url string, logger *zap.Logger) *WebhookNotifier {
	client := resty.New().
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Content-Type", "application/json")

	return &WebhookNotifier{
		httpClient: client,
		url:        url,
		logger:     logger,
	}
}

// PublishDelta 实现 Notifier
func (n *WebhookNotifier) PublishDelta(ctx context.Context, delta *models.ZoneDelta) error {
	if !delta.HasStateChange() {
		return nil
	}

	resp, err := n.httpClient.R().
		SetContext(ctx).
		SetBody(delta).
		Post(n.url)
	if err != nil {
		return fmt.Errorf("failed to post zone delta to webhook: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode())
	}

	n.logger.Debug("Posted zone delta to webhook",
		zap.String("zone", delta.ZoneName),
		zap.Uint64("seq", delta.Seq),
		zap.Int("status", resp.StatusCode()),
	)
	return nil
}
