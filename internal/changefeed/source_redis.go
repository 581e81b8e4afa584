package changefeed

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSource subscribes to the relay's pub/sub channel.
type RedisSource struct {
	client  *redis.Client
	channel string
}

func NewRedisSource(client *redis.Client, channel string) (*RedisSource, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client required for the change feed")
	}
	if channel == "" {
		return nil, fmt.Errorf("redis channel required for the change feed")
	}
	return &RedisSource{client: client, channel: channel}, nil
}

func (s *RedisSource) Name() string { return "redis" }

// subscription is the part of *redis.PubSub the receive loop reads from.
type subscription interface {
	Receive(ctx context.Context) (interface{}, error)
}

func (s *RedisSource) Run(ctx context.Context, sink Sink) error {
	sub := s.client.Subscribe(ctx, s.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", s.channel, err)
	}
	return receive(ctx, sub, sink, reconnectDelay)
}

// receive runs after the initial subscription is confirmed. go-redis
// reconnects underneath, so every later subscribe confirmation means
// messages may have been missed and the sink must resync.
func receive(ctx context.Context, sub subscription, sink Sink, retry time.Duration) error {
	for {
		msg, err := sub.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err := wait(ctx, retry); err != nil {
				return err
			}
			continue
		}
		switch m := msg.(type) {
		case *redis.Message:
			sink.Deliver([]byte(m.Payload))
		case *redis.Subscription:
			if m.Kind == "subscribe" {
				sink.Resync()
			}
		}
	}
}
