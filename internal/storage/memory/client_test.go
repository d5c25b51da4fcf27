package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionRoundTrip(t *testing.T) {
	c := New()
	ctx := context.Background()

	require.NoError(t, c.SetSession(ctx, "s1", "alice", time.Minute))

	userID, err := c.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "alice", userID)

	userID, err = c.GetSession(ctx, "unknown")
	require.NoError(t, err)
	assert.Equal(t, "", userID)

	require.NoError(t, c.DeleteSession(ctx, "s1"))
	userID, err = c.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "", userID)
}

func TestSessionExpiry(t *testing.T) {
	c := New()
	ctx := context.Background()

	require.NoError(t, c.SetSession(ctx, "s1", "alice", 20*time.Millisecond))
	time.Sleep(40 * time.Millisecond)

	userID, err := c.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "", userID)
}

func TestTypingFactsExpireAndClear(t *testing.T) {
	c := New()
	ctx := context.Background()

	require.NoError(t, c.SetTyping(ctx, "group:g1", "alice", time.Minute))
	require.NoError(t, c.SetTyping(ctx, "group:g1", "bob", 20*time.Millisecond))
	require.NoError(t, c.SetTyping(ctx, "group:g2", "carol", time.Minute))

	time.Sleep(40 * time.Millisecond)

	users, err := c.TypingUsers(ctx, "group:g1")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, users)

	require.NoError(t, c.ClearTyping(ctx, "group:g1", "alice"))
	users, err = c.TypingUsers(ctx, "group:g1")
	require.NoError(t, err)
	assert.Empty(t, users)

	// Other scopes are untouched.
	users, err = c.TypingUsers(ctx, "group:g2")
	require.NoError(t, err)
	assert.Equal(t, []string{"carol"}, users)
}

func TestTypingPulseRefreshesTTL(t *testing.T) {
	c := New()
	ctx := context.Background()

	require.NoError(t, c.SetTyping(ctx, "dm:a:b", "alice", 50*time.Millisecond))
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, c.SetTyping(ctx, "dm:a:b", "alice", 50*time.Millisecond))
	time.Sleep(30 * time.Millisecond)

	// 60ms after the first pulse the fact is still alive thanks to the refresh.
	users, err := c.TypingUsers(ctx, "dm:a:b")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, users)
}
