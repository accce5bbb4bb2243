package notifier

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xnrt-platform/xnrt_service/internal/infrastructure/cache"
)

const notificationChannel = "xnrt:notifications"

// Dispatcher delivers fire-and-forget user notifications. Delivery failure is
// logged and swallowed: a credit that is already durable must never be rolled
// back or retried because a notification could not be sent.
type Dispatcher interface {
	Notify(ctx context.Context, userID uuid.UUID, payload map[string]interface{})
}

// RedisDispatcher publishes notifications on a Redis pub/sub channel consumed
// by the delivery workers
type RedisDispatcher struct {
	redis  cache.RedisClient
	logger *zap.Logger
}

// NewRedisDispatcher creates a Redis-backed dispatcher
func NewRedisDispatcher(redis cache.RedisClient, logger *zap.Logger) *RedisDispatcher {
	return &RedisDispatcher{redis: redis, logger: logger}
}

// Notify publishes the payload without blocking the caller
func (d *RedisDispatcher) Notify(ctx context.Context, userID uuid.UUID, payload map[string]interface{}) {
	message := map[string]interface{}{
		"user_id":    userID.String(),
		"payload":    payload,
		"created_at": time.Now().UTC(),
	}

	go func() {
		publishCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := d.redis.Publish(publishCtx, notificationChannel, message); err != nil {
			d.logger.Warn("failed to publish notification",
				zap.Error(err),
				zap.String("user_id", userID.String()))
		}
	}()
}

// NoopDispatcher discards notifications; used in tests
type NoopDispatcher struct{}

func (NoopDispatcher) Notify(context.Context, uuid.UUID, map[string]interface{}) {}
