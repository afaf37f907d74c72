// Package realtime fans review activity out to connected clients over
// Redis pub/sub and caches assembled feed pages. The service only
// produces and consumes events here; the transport itself is Redis.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/trogers1052/pattern-review-service/internal/config"
	"github.com/trogers1052/pattern-review-service/internal/models"
)

// Client wraps the Redis client with review-specific operations
type Client struct {
	rdb *redis.Client
}

// New creates a new Redis client
func New(cfg config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Address(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks if Redis is reachable
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// SessionChannel returns the pub/sub channel for a session's activity.
func SessionChannel(sessionID string) string {
	return fmt.Sprintf("session:%s:events", sessionID)
}

// PresenceChannel returns the pub/sub channel for a session's presence
// and cursor events.
func PresenceChannel(sessionID string) string {
	return fmt.Sprintf("session:%s:presence", sessionID)
}

// PublishActivity sends an activity event to the session's channel.
// Events without a session id go nowhere on the realtime transport; the
// Kafka activity topic still records them.
func (c *Client) PublishActivity(ctx context.Context, event *models.ActivityEvent) error {
	if event.Data.SessionID == "" {
		return nil
	}
	return c.publish(ctx, SessionChannel(event.Data.SessionID), event)
}

// PublishPresence sends a presence event, fire-and-forget semantics: the
// caller logs and drops failures.
func (c *Client) PublishPresence(ctx context.Context, event *models.PresenceEvent) error {
	return c.publish(ctx, PresenceChannel(event.SessionID), event)
}

// Subscribe returns a subscription to the given channels.
func (c *Client) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	return c.rdb.Subscribe(ctx, channels...)
}

func (c *Client) publish(ctx context.Context, channel string, message interface{}) error {
	jsonData, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return c.rdb.Publish(ctx, channel, jsonData).Err()
}

// Feed page caching

// GetFeedPage retrieves a cached feed page. A cache miss returns
// (nil, redis.Nil).
func (c *Client) GetFeedPage(ctx context.Context, key string) (*models.FeedPage, error) {
	jsonData, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return nil, err
	}
	var page models.FeedPage
	if err := json.Unmarshal(jsonData, &page); err != nil {
		return nil, fmt.Errorf("failed to unmarshal feed page: %w", err)
	}
	return &page, nil
}

// SetFeedPage caches a feed page with TTL.
func (c *Client) SetFeedPage(ctx context.Context, key string, page *models.FeedPage, ttl time.Duration) error {
	jsonData, err := json.Marshal(page)
	if err != nil {
		return fmt.Errorf("failed to marshal feed page: %w", err)
	}
	return c.rdb.Set(ctx, key, jsonData, ttl).Err()
}

// Generic operations

// Delete removes keys
func (c *Client) Delete(ctx context.Context, keys ...string) error {
	return c.rdb.Del(ctx, keys...).Err()
}

// GetRawClient returns the underlying redis client for advanced operations
func (c *Client) GetRawClient() *redis.Client {
	return c.rdb
}
