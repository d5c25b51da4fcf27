package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Client struct {
	cli *redis.Client
}

func New(ctx context.Context, url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{cli: cli}, nil
}

func (c *Client) Close() error {
	return c.cli.Close()
}

func (c *Client) SetSession(ctx context.Context, sessionID, userID string, ttl time.Duration) error {
	return c.cli.Set(ctx, "session:"+sessionID, userID, ttl).Err()
}

func (c *Client) GetSession(ctx context.Context, sessionID string) (string, error) {
	val, err := c.cli.Get(ctx, "session:"+sessionID).Result()
	if err == redis.Nil {
		return "", nil
	}
	return val, err
}

func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	return c.cli.Del(ctx, "session:"+sessionID).Err()
}

// SetTyping rewrites typing:{scope}:{user} with a fresh TTL on every pulse.
// The key expiring IS the typing fact going stale, even if the process that
// wrote it died mid-interval.
func (c *Client) SetTyping(ctx context.Context, scope, userID string, ttl time.Duration) error {
	return c.cli.Set(ctx, typingKey(scope, userID), "1", ttl).Err()
}

func (c *Client) ClearTyping(ctx context.Context, scope, userID string) error {
	return c.cli.Del(ctx, typingKey(scope, userID)).Err()
}

func (c *Client) TypingUsers(ctx context.Context, scope string) ([]string, error) {
	prefix := "typing:" + scope + ":"
	var users []string
	var cursor uint64
	for {
		keys, next, err := c.cli.Scan(ctx, cursor, prefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("redis scan typing: %w", err)
		}
		for _, k := range keys {
			users = append(users, k[len(prefix):])
		}
		cursor = next
		if cursor == 0 {
			return users, nil
		}
	}
}

func typingKey(scope, userID string) string {
	return "typing:" + scope + ":" + userID
}
