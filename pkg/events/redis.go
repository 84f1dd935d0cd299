package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Redis is a Bus backed by Redis pub/sub so several server processes share
// one change feed.
type Redis struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

// NewRedis creates a Redis-backed bus publishing on channel.
func NewRedis(client *redis.Client, channel string, logger *zap.Logger) *Redis {
	if channel == "" {
		channel = "voicevoter:events"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redis{client: client, channel: channel, logger: logger}
}

func (r *Redis) Publish(ctx context.Context, e Event) error {
	body, err := json.Marshal(stamp(e))
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, body).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

func (r *Redis) Subscribe(ctx context.Context) (<-chan Event, func(), error) {
	pubsub := r.client.Subscribe(ctx, r.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("subscribe %s: %w", r.channel, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	out := make(chan Event, subscriberBuffer)

	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var e Event
				if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
					r.logger.Error("failed to parse redis event",
						zap.Error(err),
						zap.String("channel", msg.Channel))
					continue
				}
				select {
				case out <- e:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, cancel, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
