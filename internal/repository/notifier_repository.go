package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/internal/models"
)

// RedisNotifier publishes scheduling notifications on a Redis channel.
type RedisNotifier struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

// NewRedisNotifier constructs a notifier. A nil client logs notifications instead of publishing.
func NewRedisNotifier(client *redis.Client, channel string, logger *zap.Logger) *RedisNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisNotifier{client: client, channel: channel, logger: logger}
}

// Notify publishes the notification as JSON.
func (n *RedisNotifier) Notify(ctx context.Context, notification models.Notification) error {
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = time.Now().UTC()
	}
	if n.client == nil {
		n.logger.Info("notification",
			zap.String("type", notification.Type),
			zap.String("student_id", notification.StudentID),
			zap.String("subject", notification.Subject),
		)
		return nil
	}
	payload, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	if err := n.client.Publish(ctx, n.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}
