package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/edutrack/messaging/internal/storage"
)

// SessionAuth validates X-Session-Id (or the session_id query parameter, for
// the WebSocket upgrade where headers are awkward from the browser) against
// the session store and puts the resolved user id into the request context.
// Sessions are minted by the identity service; this API only validates them.
func SessionAuth(store storage.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID := r.Header.Get("X-Session-Id")
			if sessionID == "" {
				sessionID = r.URL.Query().Get("session_id")
			}
			if sessionID == "" {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			userID, err := store.GetSession(r.Context(), sessionID)
			if err != nil || userID == "" {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), UserIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// MaskSessionID masks a session id for logs (never log the full id).
func MaskSessionID(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= 4 {
		return "****"
	}
	return s[:4] + "***"
}
