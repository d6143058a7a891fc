package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Client stores live session state: agent snapshots, round counters and idle
// timers.
type Client struct {
	rdb *redis.Client
}

// NewClient connects to Redis at redisURL.
func NewClient(ctx context.Context, redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	c := &Client{rdb: redis.NewClient(opts)}
	if err := c.Ping(ctx); err != nil {
		c.rdb.Close()
		return nil, err
	}
	return c, nil
}

// Ping checks the connection.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// EnableExpiryEvents turns on keyspace notifications for expired keys, which
// the idle listener subscribes to. Managed Redis offerings often forbid CONFIG.
func (c *Client) EnableExpiryEvents(ctx context.Context) error {
	if err := c.rdb.ConfigSet(ctx, "notify-keyspace-events", "Ex").Err(); err != nil {
		return fmt.Errorf("enable expiry events: %w", err)
	}
	return nil
}

func (c *Client) Close() error { return c.rdb.Close() }

// Underlying returns the raw client for pub/sub.
func (c *Client) Underlying() *redis.Client { return c.rdb }
