package handler

import (
	"net/http"

	"github.com/edutrack/messaging/internal/middleware"
	"github.com/edutrack/messaging/internal/push"
	"github.com/edutrack/messaging/internal/repository"
)

// PushHandler manages Web Push subscriptions and exposes the VAPID public key.
type PushHandler struct {
	svc       *push.Service
	publicKey string
}

func NewPushHandler(svc *push.Service, publicKey string) *PushHandler {
	return &PushHandler{svc: svc, publicKey: publicKey}
}

// Config returns the VAPID public key the browser needs to subscribe.
// GET /api/config/push
func (h *PushHandler) Config(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"vapid_public_key": h.publicKey})
}

// Subscribe stores a browser push subscription for the caller.
// POST /api/push/subscribe
func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	var body struct {
		Endpoint string `json:"endpoint"`
		Keys     struct {
			P256dh string `json:"p256dh"`
			Auth   string `json:"auth"`
		} `json:"keys"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Endpoint == "" || body.Keys.P256dh == "" || body.Keys.Auth == "" {
		writeError(w, http.StatusBadRequest, "endpoint and keys are required")
		return
	}
	sub := &repository.PushSubscription{
		UserID:   userID,
		Endpoint: body.Endpoint,
		P256dh:   body.Keys.P256dh,
		Auth:     body.Keys.Auth,
	}
	if err := h.svc.Subscribe(r.Context(), sub); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "subscribed"})
}

// Unsubscribe removes the caller's subscription for the endpoint.
// DELETE /api/push/subscribe
func (h *PushHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	var body struct {
		Endpoint string `json:"endpoint"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if err := h.svc.Unsubscribe(r.Context(), userID, body.Endpoint); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "unsubscribed"})
}
