package memory

import (
	"context"
	"sync"
	"time"
)

type item struct {
	val string
	exp time.Time
}

// Client is an in-process Store for -dev runs and tests. No background
// reaper: expired entries are filtered on read.
type Client struct {
	mu       sync.RWMutex
	sessions map[string]item
	typing   map[string]item // key: scope + "|" + user
}

func New() *Client {
	return &Client{
		sessions: make(map[string]item),
		typing:   make(map[string]item),
	}
}

func (c *Client) Close() error { return nil }

func (c *Client) SetSession(ctx context.Context, sessionID, userID string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[sessionID] = item{val: userID, exp: time.Now().Add(ttl)}
	return nil
}

func (c *Client) GetSession(ctx context.Context, sessionID string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.sessions[sessionID]
	if !ok || time.Now().After(v.exp) {
		return "", nil
	}
	return v.val, nil
}

func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, sessionID)
	return nil
}

func (c *Client) SetTyping(ctx context.Context, scope, userID string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.typing[scope+"|"+userID] = item{val: userID, exp: time.Now().Add(ttl)}
	return nil
}

func (c *Client) ClearTyping(ctx context.Context, scope, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.typing, scope+"|"+userID)
	return nil
}

func (c *Client) TypingUsers(ctx context.Context, scope string) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	now := time.Now()
	prefix := scope + "|"
	var users []string
	for k, v := range c.typing {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix && now.Before(v.exp) {
			users = append(users, v.val)
		}
	}
	return users, nil
}
