package storage

import (
	"context"
	"time"
)

// Store holds the ephemeral state of the service: authenticated sessions and
// typing facts. Typing facts are liveness pulses with a short expiry; they are
// deliberately not persisted to Postgres. Implementations: redis.Client,
// memory.Client (for -dev and tests).
type Store interface {
	// SetSession maps a session id to a user id with the given TTL.
	SetSession(ctx context.Context, sessionID, userID string, ttl time.Duration) error
	// GetSession returns the user id for a session, or "" when unknown/expired.
	GetSession(ctx context.Context, sessionID string) (string, error)
	DeleteSession(ctx context.Context, sessionID string) error

	// SetTyping records that the user is typing in the scope. Every pulse
	// rewrites the fact with a fresh TTL, so expiry is debounced: the fact
	// outlives the last keystroke by at most ttl.
	SetTyping(ctx context.Context, scope, userID string, ttl time.Duration) error
	ClearTyping(ctx context.Context, scope, userID string) error
	// TypingUsers returns the ids of users with a live typing fact in scope.
	TypingUsers(ctx context.Context, scope string) ([]string, error)

	Close() error
}
