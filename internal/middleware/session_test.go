package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edutrack/messaging/internal/storage/memory"
)

func TestSessionAuth(t *testing.T) {
	store := memory.New()
	require.NoError(t, store.SetSession(context.Background(), "valid-session", "alice", time.Minute))

	var gotUserID string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID = GetUserID(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	h := SessionAuth(store)(next)

	t.Run("missing session", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/users", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("unknown session", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
		req.Header.Set("X-Session-Id", "nope")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("header session", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
		req.Header.Set("X-Session-Id", "valid-session")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "alice", gotUserID)
	})

	t.Run("query session for websocket", func(t *testing.T) {
		gotUserID = ""
		req := httptest.NewRequest(http.MethodGet, "/ws?session_id=valid-session", nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "alice", gotUserID)
	})
}

func TestMaskSessionID(t *testing.T) {
	assert.Equal(t, "****", MaskSessionID("abc"))
	assert.Equal(t, "abcd***", MaskSessionID("abcdefgh"))
}
