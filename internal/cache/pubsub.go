package cache

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"agromarket/internal/logger"
)

// ErrRedisDisabled is returned by the pub/sub helpers while RedisClient is nil.
var ErrRedisDisabled = errors.New("redis is not configured")

// PublishMessage publishes a message to a Redis channel.
func PublishMessage(ctx context.Context, channel string, message string) error {
	if !Enabled() {
		return ErrRedisDisabled
	}
	return RedisClient.Publish(ctx, channel, message).Err()
}

// RedisSubscriber is a confirmed subscription to one Redis channel.
type RedisSubscriber struct {
	pubsub *redis.PubSub
}

func NewRedisSubscriber(ctx context.Context, channel string) (*RedisSubscriber, error) {
	if !Enabled() {
		return nil, ErrRedisDisabled
	}
	pubsub := RedisClient.Subscribe(ctx, channel)

	// Confirm subscription
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	logger.Log.Info("Subscribed to Redis channel", zap.String("channel", channel))
	return &RedisSubscriber{pubsub: pubsub}, nil
}

// ReceiveMessage waits for and returns the next message.
func (s *RedisSubscriber) ReceiveMessage(ctx context.Context) (*redis.Message, error) {
	return s.pubsub.ReceiveMessage(ctx)
}

func (s *RedisSubscriber) Close() error {
	return s.pubsub.Close()
}
