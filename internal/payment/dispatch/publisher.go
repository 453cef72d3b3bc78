package dispatch

import (
	"context"
	"fmt"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Publisher pushes a message to every subscriber of a topic. Delivery is
// fire-and-forget; connection management belongs to the push gateway.
type Publisher interface {
	Publish(ctx context.Context, topic string, message []byte) error
}

func UserTopic(userID int64) string {
	return fmt.Sprintf("user_%d", userID)
}

type RedisPublisher struct {
	client *redis.Client
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (p *RedisPublisher) Publish(ctx context.Context, topic string, message []byte) error {
	return p.client.Publish(ctx, topic, message).Err()
}

// LogPublisher stands in when no Redis is configured.
type LogPublisher struct {
	log *zap.Logger
}

func (p *LogPublisher) Publish(ctx context.Context, topic string, message []byte) error {
	p.log.Info("push message", zap.String("topic", topic), zap.ByteString("message", message))
	return nil
}

func NewPublisher(client *redis.Client, log *zap.Logger) Publisher {
	if client == nil {
		return &LogPublisher{log: log.Named("payment.push")}
	}
	return NewRedisPublisher(client)
}
