package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis"
)

// DefaultChannel is the Redis channel events are published on.
const DefaultChannel = "keygate:events"

// Redis publishes events as JSON on a Redis pub/sub channel.
type Redis struct {
	client  *redis.Client
	channel string
}

// NewRedis returns a publisher for addr. The client connects lazily, so an
// unreachable server surfaces as Notify errors rather than here.
func NewRedis(addr, channel string) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		MaxRetries:   2,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	if channel == "" {
		channel = DefaultChannel
	}
	return &Redis{client: client, channel: channel}
}

// Ping checks that the server answers.
func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.WithContext(ctx).Ping().Err(); err != nil {
		return fmt.Errorf("ping redis %s: %w", r.client.Options().Addr, err)
	}
	return nil
}

func (r *Redis) Notify(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := r.client.WithContext(ctx).Publish(r.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", r.channel, err)
	}
	return nil
}

// Close releases the Redis connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}
