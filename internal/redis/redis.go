package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storyforge/internal/config"

	redis "github.com/redis/go-redis/v9"
)

const (
	defaultHost = "127.0.0.1"
	defaultPort = 6379
	defaultTTL  = 30 * time.Minute
	pingTimeout = 3 * time.Second
)

// Client wraps go-redis client to centralize configuration.
type Client struct {
	inner *redis.Client
	ttl   time.Duration
}

// ErrCacheMiss mirrors redis.Nil for callers.
var ErrCacheMiss = redis.Nil

// ErrDisabled is returned when the redis section is switched off.
var ErrDisabled = errors.New("redis disabled")

var errNotInitialized = errors.New("redis client not initialized")

// NewRedisClient creates the redis client from app config and checks that
// the server answers.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	host := cfg.Host
	if host == "" {
		host = defaultHost
	}
	port := cfg.Port
	if port == 0 {
		port = defaultPort
	}
	ttl := defaultTTL
	if cfg.TTL > 0 {
		ttl = time.Duration(cfg.TTL) * time.Minute
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s:%d: %w", host, port, err)
	}
	return &Client{inner: client, ttl: ttl}, nil
}

// TTL is the expiry applied to cached entries.
func (c *Client) TTL() time.Duration {
	if c == nil || c.ttl <= 0 {
		return defaultTTL
	}
	return c.ttl
}

// Set stores a key with the configured TTL.
func (c *Client) Set(ctx context.Context, key string, value any) error {
	if c == nil || c.inner == nil {
		return errNotInitialized
	}
	return c.inner.Set(ctx, key, value, c.TTL()).Err()
}

// Get fetches the key as string.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	if c == nil || c.inner == nil {
		return "", errNotInitialized
	}
	return c.inner.Get(ctx, key).Result()
}

// Del removes provided keys.
func (c *Client) Del(ctx context.Context, keys ...string) error {
	if c == nil || c.inner == nil {
		return errNotInitialized
	}
	if len(keys) == 0 {
		return nil
	}
	return c.inner.Del(ctx, keys...).Err()
}

// Publish sends payload on channel.
func (c *Client) Publish(ctx context.Context, channel string, payload []byte) error {
	if c == nil || c.inner == nil {
		return errNotInitialized
	}
	return c.inner.Publish(ctx, channel, payload).Err()
}

// Subscribe listens on channel. The subscription ends when ctx is done.
func (c *Client) Subscribe(ctx context.Context, channel string) (<-chan *redis.Message, error) {
	if c == nil || c.inner == nil {
		return nil, errNotInitialized
	}
	pubsub := c.inner.Subscribe(ctx, channel)
	// wait for the confirmation so no publish after return is missed
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, err
	}
	context.AfterFunc(ctx, func() { pubsub.Close() })
	return pubsub.Channel(), nil
}

// Close closes client.
func (c *Client) Close() error {
	if c == nil || c.inner == nil {
		return nil
	}
	return c.inner.Close()
}

// Raw exposes underlying go-redis client.
func (c *Client) Raw() *redis.Client {
	if c == nil {
		return nil
	}
	return c.inner
}
