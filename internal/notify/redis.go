package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

const defaultChannelPrefix = "answerdesk:events:"

// RedisPublisher publishes live events on Redis pub/sub so every API
// replica's Hub sees them. Channels are "<prefix><scope>".
type RedisPublisher struct {
	client *redis.Client
	prefix string
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client, prefix: defaultChannelPrefix}
}

func (p *RedisPublisher) Publish(ctx context.Context, scope Scope, event string, payload any) error {
	evt, err := newEvent(scope, event, payload)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	receivers, err := p.client.Publish(ctx, p.prefix+string(scope), raw).Result()
	if err != nil {
		return fmt.Errorf("publish %s: %w", event, err)
	}
	if receivers == 0 {
		return ErrNoSubscribers
	}
	return nil
}

// RedisRelay feeds events published on Redis into a local Hub.
type RedisRelay struct {
	client *redis.Client
	prefix string
	hub    *Hub
	logger *slog.Logger
}

func NewRedisRelay(client *redis.Client, hub *Hub, logger *slog.Logger) *RedisRelay {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisRelay{client: client, prefix: defaultChannelPrefix, hub: hub, logger: logger}
}

// Run relays until ctx is done. ready, when non-nil, is closed once the
// pattern subscription is confirmed.
func (r *RedisRelay) Run(ctx context.Context, ready chan<- struct{}) error {
	pubsub := r.client.PSubscribe(ctx, r.prefix+"*")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to events: %w", err)
	}
	if ready != nil {
		close(ready)
	}

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			var evt Event
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				r.logger.Warn("discarding malformed live event", "channel", msg.Channel, "error", err)
				continue
			}
			if err := r.hub.Deliver(evt); err != nil && !errors.Is(err, ErrNoSubscribers) {
				r.logger.Warn("relay live event", "scope", evt.Scope, "event", evt.Name, "error", err)
			}
		}
	}
}
