package ws

import (
	"sync"
	"time"
)

// typingTracker turns typing pulses into start/stop edges with a debounced
// expiry: every pulse resets the per-(scope,user) timer, so the stop edge
// fires only after the user has been idle for the full ttl — not ttl after
// the first keystroke.
type typingTracker struct {
	mu     sync.Mutex
	ttl    time.Duration
	timers map[string]*time.Timer
	// expire runs outside the lock when a typing fact goes stale.
	expire func(scope, userID string)
}

func newTypingTracker(ttl time.Duration, expire func(scope, userID string)) *typingTracker {
	return &typingTracker{
		ttl:    ttl,
		timers: make(map[string]*time.Timer),
		expire: expire,
	}
}

// pulse records a keystroke. Returns true when this is the start of a new
// typing interval (the caller broadcasts a typing event), false when an
// existing interval was merely extended.
func (t *typingTracker) pulse(scope, userID string) bool {
	key := scope + "|" + userID
	t.mu.Lock()
	defer t.mu.Unlock()
	if tm, ok := t.timers[key]; ok {
		tm.Reset(t.ttl)
		return false
	}
	t.timers[key] = time.AfterFunc(t.ttl, func() {
		t.expired(scope, userID, key)
	})
	return true
}

func (t *typingTracker) expired(scope, userID, key string) {
	t.mu.Lock()
	_, ok := t.timers[key]
	delete(t.timers, key)
	t.mu.Unlock()
	if ok {
		t.expire(scope, userID)
	}
}

// cancel drops the interval without firing expire. Returns true if the user
// was typing (the caller broadcasts typing_stopped, e.g. after a send).
func (t *typingTracker) cancel(scope, userID string) bool {
	key := scope + "|" + userID
	t.mu.Lock()
	defer t.mu.Unlock()
	tm, ok := t.timers[key]
	if !ok {
		return false
	}
	tm.Stop()
	delete(t.timers, key)
	return true
}

func (t *typingTracker) stopAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, tm := range t.timers {
		tm.Stop()
		delete(t.timers, key)
	}
}
