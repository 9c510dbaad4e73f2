package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/PaulBabatuyi/feedchat/internal/metrics"
)

const relayChannel = "feedchat:appended"

// RedisRelay fans append notifications out to the other gateway replicas so
// their subscribers re-read the live window too.
type RedisRelay struct {
	client   *redis.Client
	instance string
	logger   *zap.Logger
}

// NewRedisRelay connects to redisURL.
func NewRedisRelay(ctx context.Context, redisURL string, logger *zap.Logger) (*RedisRelay, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisRelay{client: client, instance: uuid.NewString(), logger: logger}, nil
}

// Publish announces an append made on this replica.
func (r *RedisRelay) Publish(ctx context.Context) error {
	if err := r.client.Publish(ctx, relayChannel, r.instance).Err(); err != nil {
		return err
	}
	metrics.RelayEvents.WithLabelValues("published").Inc()
	return nil
}

// Run wakes hub subscribers for every append announced by another replica
// until ctx ends.
func (r *RedisRelay) Run(ctx context.Context, hub *SubscriptionHub) error {
	sub := r.client.Subscribe(ctx, relayChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.deliver(msg.Payload, hub)
		}
	}
}

// deliver broadcasts unless the announcement came from this replica.
func (r *RedisRelay) deliver(origin string, hub *SubscriptionHub) bool {
	if origin == r.instance {
		return false
	}
	metrics.RelayEvents.WithLabelValues("received").Inc()
	n := hub.Broadcast()
	r.logger.Debug("relayed append", zap.String("origin", origin), zap.Int("subscribers", n))
	return true
}

// Close closes the Redis connection.
func (r *RedisRelay) Close() error {
	return r.client.Close()
}
