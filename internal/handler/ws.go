package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/edutrack/messaging/internal/logger"
	"github.com/edutrack/messaging/internal/middleware"
	"github.com/edutrack/messaging/internal/ws"
)

// WSHandler upgrades the connection and hands it to the hub. Authentication
// already happened in SessionAuth (session_id query parameter for browsers).
func WSHandler(hub *ws.Hub, allowedOrigins string) http.HandlerFunc {
	origins := strings.Split(allowedOrigins, ",")
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, allowed := range origins {
				allowed = strings.TrimSpace(allowed)
				if allowed == "*" || allowed == origin {
					return true
				}
			}
			return false
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.GetUserID(r.Context())
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Errorf("ws upgrade user=%s: %v", userID, err)
			return
		}

		// Start before Register: registration may reject the client (connection
		// cap) and call Close, which needs the stored cancel to stop the pumps.
		client := ws.NewClient(hub, conn, userID)
		ctx, cancel := context.WithCancel(context.Background())
		client.Start(ctx, cancel)
		hub.Register(client)
	}
}
