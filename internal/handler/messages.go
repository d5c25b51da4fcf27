package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/edutrack/messaging/internal/middleware"
	"github.com/edutrack/messaging/internal/repository"
	"github.com/edutrack/messaging/internal/ws"
)

// MessageHandler serves the REST side of direct messaging. Sends, edits and
// deletes go through the hub so live subscribers see them immediately.
type MessageHandler struct {
	hub      *ws.Hub
	messages *repository.MessageRepository
	friends  ws.FriendStore
}

func NewMessageHandler(hub *ws.Hub, messages *repository.MessageRepository, friends ws.FriendStore) *MessageHandler {
	return &MessageHandler{hub: hub, messages: messages, friends: friends}
}

// History returns the full conversation with peerId, ascending by time.
// GET /api/messages/{peerId}
func (h *MessageHandler) History(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	peerID := chi.URLParam(r, "peerId")
	ok, err := h.friends.AreFriends(r.Context(), userID, peerID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if !ok {
		writeDomainError(w, ws.ErrNotFriends)
		return
	}
	messages, err := h.messages.DirectHistory(r.Context(), userID, peerID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

// Send creates a direct message to peerId.
// POST /api/messages/{peerId}
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	peerID := chi.URLParam(r, "peerId")
	var body struct {
		Content string `json:"content"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	m, err := h.hub.SendDirect(r.Context(), userID, peerID, body.Content)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// Edit rewrites a message's content. Author-only.
// PATCH /api/messages/{id}
func (h *MessageHandler) Edit(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	messageID := chi.URLParam(r, "id")
	var body struct {
		Content string `json:"content"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	m, err := h.hub.EditMessage(r.Context(), userID, messageID, body.Content)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// Delete removes a message permanently. Author-only.
// DELETE /api/messages/{id}
func (h *MessageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	messageID := chi.URLParam(r, "id")
	if _, err := h.hub.DeleteMessage(r.Context(), userID, messageID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// React increments an emoji counter on a message.
// POST /api/messages/{id}/reactions
func (h *MessageHandler) React(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	messageID := chi.URLParam(r, "id")
	var body struct {
		Emoji string `json:"emoji"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	reactions, err := h.hub.AddReaction(r.Context(), userID, messageID, body.Emoji)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reactions": reactions})
}

// TogglePin flips the pinned flag on a group message.
// POST /api/messages/{id}/pin
func (h *MessageHandler) TogglePin(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	messageID := chi.URLParam(r, "id")
	pinned, _, err := h.hub.TogglePin(r.Context(), userID, messageID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"pinned": pinned})
}
