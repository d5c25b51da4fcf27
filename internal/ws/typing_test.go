package ws

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type expireRecorder struct {
	mu    sync.Mutex
	calls []string
	ch    chan string
}

func newExpireRecorder() *expireRecorder {
	return &expireRecorder{ch: make(chan string, 8)}
}

func (r *expireRecorder) record(scope, userID string) {
	r.mu.Lock()
	r.calls = append(r.calls, scope+"|"+userID)
	r.mu.Unlock()
	r.ch <- scope + "|" + userID
}

func (r *expireRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func TestTypingTrackerPulseEdges(t *testing.T) {
	rec := newExpireRecorder()
	tr := newTypingTracker(80*time.Millisecond, rec.record)

	require.True(t, tr.pulse("g1", "alice"), "first pulse starts an interval")
	require.False(t, tr.pulse("g1", "alice"), "second pulse extends it")
	require.True(t, tr.pulse("g1", "bob"), "another user is a separate interval")
}

func TestTypingTrackerExpiresOnceAfterLastPulse(t *testing.T) {
	rec := newExpireRecorder()
	tr := newTypingTracker(80*time.Millisecond, rec.record)

	tr.pulse("g1", "alice")
	time.Sleep(40 * time.Millisecond)
	tr.pulse("g1", "alice")

	select {
	case got := <-rec.ch:
		require.Equal(t, "g1|alice", got)
	case <-time.After(time.Second):
		t.Fatal("expire never fired")
	}
	// No duplicate expiry.
	time.Sleep(120 * time.Millisecond)
	require.Equal(t, 1, rec.count())
}

func TestTypingTrackerCancelSuppressesExpire(t *testing.T) {
	rec := newExpireRecorder()
	tr := newTypingTracker(50*time.Millisecond, rec.record)

	tr.pulse("g1", "alice")
	require.True(t, tr.cancel("g1", "alice"))
	require.False(t, tr.cancel("g1", "alice"), "second cancel is a no-op")

	time.Sleep(120 * time.Millisecond)
	require.Equal(t, 0, rec.count())
}

func TestTypingTrackerStopAll(t *testing.T) {
	rec := newExpireRecorder()
	tr := newTypingTracker(50*time.Millisecond, rec.record)

	tr.pulse("g1", "alice")
	tr.pulse("dm:a:b", "bob")
	tr.stopAll()

	time.Sleep(120 * time.Millisecond)
	require.Equal(t, 0, rec.count())
}
