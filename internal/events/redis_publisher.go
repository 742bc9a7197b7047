package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// Publisher is the subset of a Redis client used to publish events.
// *redis.Client satisfies it.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisPublisher is an EventHandler that publishes every event it receives
// as JSON on a Redis pub/sub channel.
type RedisPublisher struct {
	client  Publisher
	channel string
	logger  *slog.Logger
}

var _ EventHandler = (*RedisPublisher)(nil)

// NewRedisPublisher creates a RedisPublisher for the given channel.
func NewRedisPublisher(client Publisher, channel string, log *slog.Logger) *RedisPublisher {
	if client == nil {
		panic("redis client cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &RedisPublisher{
		client:  client,
		channel: channel,
		logger:  log.With(slog.String("component", "redis_publisher")),
	}
}

// HandleEvent implements EventHandler.
func (p *RedisPublisher) HandleEvent(ctx context.Context, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event %s: %w", event.ID, err)
	}

	receivers, err := p.client.Publish(ctx, p.channel, body).Result()
	if err != nil {
		return fmt.Errorf("failed to publish event %s to %s: %w", event.ID, p.channel, err)
	}

	p.logger.Debug("event published",
		slog.String("event_id", event.ID.String()),
		slog.String("event_type", event.Type),
		slog.String("channel", p.channel),
		slog.Int64("receivers", receivers))
	return nil
}
