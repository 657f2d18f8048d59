package mirror

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/matzehuels/graphsync/pkg/errors"
)

// DefaultRedisChannel is the channel events are published to when none is
// configured.
const DefaultRedisChannel = "graphsync:events"

// RedisOptions configures a [RedisPublisher].
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// RedisPublisher PUBLISHes every event to a Redis channel so processes
// outside this server can follow the graph.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

// NewRedisPublisher connects to Redis and verifies the connection with PING.
func NewRedisPublisher(ctx context.Context, opts RedisOptions) (*RedisPublisher, error) {
	if opts.Channel == "" {
		opts.Channel = DefaultRedisChannel
	}
	if err := errors.ValidateChannelName(opts.Channel); err != nil {
		return nil, err
	}
	if opts.Addr == "" {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "redis address cannot be empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrap(errors.ErrCodeUnavailable, err, "connect to redis at %s", opts.Addr)
	}
	return &RedisPublisher{client: client, channel: opts.Channel}, nil
}

// Channel returns the channel events are published to.
func (p *RedisPublisher) Channel() string { return p.channel }

// Publish sends msg to the channel.
func (p *RedisPublisher) Publish(ctx context.Context, msg []byte) error {
	if err := p.client.Publish(ctx, p.channel, msg).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Close closes the Redis connection pool.
func (p *RedisPublisher) Close() error { return p.client.Close() }
