package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/edutrack/messaging/internal/cache"
	"github.com/edutrack/messaging/internal/middleware"
	"github.com/edutrack/messaging/internal/model"
	"github.com/edutrack/messaging/internal/repository"
)

// FriendHandler serves the friendship lifecycle: directory requests, accept
// and reject, and the friend list.
type FriendHandler struct {
	friends     *repository.FriendRepository
	friendCache *cache.Friends
}

func NewFriendHandler(friends *repository.FriendRepository, friendCache *cache.Friends) *FriendHandler {
	return &FriendHandler{friends: friends, friendCache: friendCache}
}

// List returns the caller's accepted friends.
// GET /api/friends
func (h *FriendHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	friends, err := h.friends.ListFriends(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, friends)
}

// Requests returns pending requests in both directions.
// GET /api/friends/requests
func (h *FriendHandler) Requests(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	incoming, sent, err := h.friends.ListRequests(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]model.FriendRequest{
		"incoming": incoming,
		"sent":     sent,
	})
}

// CreateRequest sends a friend request. A pending request in either direction,
// or an existing friendship, yields 409.
// POST /api/friends/requests
func (h *FriendHandler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	var body struct {
		ReceiverID string `json:"receiver_id"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.ReceiverID == "" || body.ReceiverID == userID {
		writeError(w, http.StatusBadRequest, "invalid receiver_id")
		return
	}
	if err := h.friends.CreateRequest(r.Context(), userID, body.ReceiverID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "pending"})
}

// Accept accepts an incoming request from senderId. Deleting the request and
// inserting the friendship happen in one transaction.
// POST /api/friends/requests/{senderId}/accept
func (h *FriendHandler) Accept(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	senderID := chi.URLParam(r, "senderId")
	if err := h.friends.AcceptRequest(r.Context(), senderID, userID); err != nil {
		writeDomainError(w, err)
		return
	}
	h.friendCache.Invalidate(senderID, userID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

// Reject drops an incoming request from senderId.
// DELETE /api/friends/requests/{senderId}
func (h *FriendHandler) Reject(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	senderID := chi.URLParam(r, "senderId")
	if err := h.friends.RejectRequest(r.Context(), senderID, userID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "rejected"})
}
