package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingFriendChecker struct {
	calls int
	pairs map[string]bool
}

func (c *countingFriendChecker) AreFriends(ctx context.Context, a, b string) (bool, error) {
	c.calls++
	return c.pairs[a+"|"+b] || c.pairs[b+"|"+a], nil
}

type countingMemberLister struct {
	calls   int
	members map[string][]string
}

func (c *countingMemberLister) GetMemberIDs(ctx context.Context, groupID string) ([]string, error) {
	c.calls++
	return c.members[groupID], nil
}

func (c *countingMemberLister) IsMember(ctx context.Context, groupID, userID string) (bool, error) {
	for _, id := range c.members[groupID] {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

func TestFriendsCachesAcrossPairOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	inner := &countingFriendChecker{pairs: map[string]bool{"alice|bob": true}}
	f := NewFriends(ctx, inner, time.Minute)

	ok, err := f.AreFriends(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.True(t, ok)

	// Reversed order hits the same cached entry.
	ok, err = f.AreFriends(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, inner.calls)
}

func TestFriendsInvalidate(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	inner := &countingFriendChecker{pairs: map[string]bool{}}
	f := NewFriends(ctx, inner, time.Minute)

	ok, _ := f.AreFriends(ctx, "alice", "bob")
	assert.False(t, ok)

	// Friendship accepted; the cached negative must be dropped.
	inner.pairs["alice|bob"] = true
	ok, _ = f.AreFriends(ctx, "alice", "bob")
	assert.False(t, ok, "still served from cache")

	f.Invalidate("bob", "alice")
	ok, _ = f.AreFriends(ctx, "alice", "bob")
	assert.True(t, ok)
}

func TestMembersCachedListAnswersIsMember(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	inner := &countingMemberLister{members: map[string][]string{"g1": {"alice", "bob"}}}
	m := NewMembers(ctx, inner, time.Minute)

	ok, err := m.IsMember(ctx, "g1", "alice")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.IsMember(ctx, "g1", "mallory")
	require.NoError(t, err)
	assert.False(t, ok)

	ids, err := m.GetMemberIDs(ctx, "g1")
	require.NoError(t, err)
	assert.Len(t, ids, 2)
	assert.Equal(t, 1, inner.calls, "one load serves every lookup")

	m.Invalidate("g1")
	_, err = m.GetMemberIDs(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}
