// Package cache provides TTL-cached decorators for the lookups on the fan-out
// hot path: friendship checks and group member lists. Mutating handlers call
// the Invalidate methods; the TTL bounds staleness for everything else.
package cache

import (
	"context"
	"time"

	"github.com/c-pro/geche"

	"github.com/edutrack/messaging/internal/model"
)

const cleanupInterval = time.Minute

// FriendChecker is the part of the friend repository the hub needs.
type FriendChecker interface {
	AreFriends(ctx context.Context, a, b string) (bool, error)
}

// Friends caches AreFriends results per canonical pair.
type Friends struct {
	inner FriendChecker
	cache geche.Geche[string, bool]
}

func NewFriends(ctx context.Context, inner FriendChecker, ttl time.Duration) *Friends {
	return &Friends{
		inner: inner,
		cache: geche.NewMapTTLCache[string, bool](ctx, ttl, cleanupInterval),
	}
}

func pairKey(a, b string) string {
	lo, hi := model.NormalizePair(a, b)
	return lo + "|" + hi
}

func (f *Friends) AreFriends(ctx context.Context, a, b string) (bool, error) {
	key := pairKey(a, b)
	if v, err := f.cache.Get(key); err == nil {
		return v, nil
	}
	v, err := f.inner.AreFriends(ctx, a, b)
	if err != nil {
		return false, err
	}
	f.cache.Set(key, v)
	return v, nil
}

// Invalidate drops the cached answer for a pair (called on accept).
func (f *Friends) Invalidate(a, b string) {
	f.cache.Del(pairKey(a, b))
}

// MemberLister is the part of the group repository the hub needs.
type MemberLister interface {
	IsMember(ctx context.Context, groupID, userID string) (bool, error)
	GetMemberIDs(ctx context.Context, groupID string) ([]string, error)
}

// Members caches group member id lists; IsMember is answered from the same
// cached list.
type Members struct {
	inner MemberLister
	cache geche.Geche[string, []string]
}

func NewMembers(ctx context.Context, inner MemberLister, ttl time.Duration) *Members {
	return &Members{
		inner: inner,
		cache: geche.NewMapTTLCache[string, []string](ctx, ttl, cleanupInterval),
	}
}

func (m *Members) GetMemberIDs(ctx context.Context, groupID string) ([]string, error) {
	if ids, err := m.cache.Get(groupID); err == nil {
		return ids, nil
	}
	ids, err := m.inner.GetMemberIDs(ctx, groupID)
	if err != nil {
		return nil, err
	}
	m.cache.Set(groupID, ids)
	return ids, nil
}

func (m *Members) IsMember(ctx context.Context, groupID, userID string) (bool, error) {
	ids, err := m.GetMemberIDs(ctx, groupID)
	if err != nil {
		return false, err
	}
	for _, id := range ids {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

// Invalidate drops the cached roster (called on join/leave/delete).
func (m *Members) Invalidate(groupID string) {
	m.cache.Del(groupID)
}
