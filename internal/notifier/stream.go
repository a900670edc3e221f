package notifier

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	rediscommon "zigbee-zones/internal/common/redis"
	"zigbee-zones/internal/models"
)

// StreamNotifier 把区域增量事件追加到 Redis Stream
//
// 下游服务（看板网关、自动化钩子）用消费者组订阅该 Stream
type StreamNotifier struct {
	redisClient *redis.Client
	stream      string
	logger      *zap.Logger
}

// NewStreamNotifier 创建 Redis Streams 通知器
func NewStreamNotifier(redisClient *redis.Client, stream string, logger *zap.Logger) *StreamNotifier {
	return &StreamNotifier{
		redisClient: redisClient,
		stream:      stream,
		logger:      logger,
	}
}

// PublishDelta 实现 Notifier
func (n *StreamNotifier) PublishDelta(ctx context.Context, delta *models.ZoneDelta) error {
	streamID, err := rediscommon.PublishJSONToStream(ctx, n.redisClient, n.stream, delta)
	if err != nil {
		return fmt.Errorf("failed to publish zone delta to stream %s: %w", n.stream, err)
	}

	n.logger.Debug("Published zone delta to Redis Streams",
		zap.String("zone", delta.ZoneName),
		zap.String("stream", n.stream),
		zap.String("stream_id", streamID),
		zap.Uint64("seq", delta.Seq),
	)
	return nil
}
