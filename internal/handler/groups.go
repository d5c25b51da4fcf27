package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/edutrack/messaging/internal/cache"
	"github.com/edutrack/messaging/internal/content"
	"github.com/edutrack/messaging/internal/middleware"
	"github.com/edutrack/messaging/internal/model"
	"github.com/edutrack/messaging/internal/repository"
	"github.com/edutrack/messaging/internal/storage"
	"github.com/edutrack/messaging/internal/ws"
)

const searchLimit = 25

// GroupHandler serves group lifecycle and the REST side of group messaging.
type GroupHandler struct {
	groups      *repository.GroupRepository
	messages    *repository.MessageRepository
	hub         *ws.Hub
	memberCache *cache.Members
	store       storage.Store
}

func NewGroupHandler(groups *repository.GroupRepository, messages *repository.MessageRepository,
	hub *ws.Hub, memberCache *cache.Members, store storage.Store) *GroupHandler {
	return &GroupHandler{
		groups:      groups,
		messages:    messages,
		hub:         hub,
		memberCache: memberCache,
		store:       store,
	}
}

// Create creates a group; the creator becomes its admin member in the same
// transaction.
// POST /api/groups
func (h *GroupHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	var body struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		ImageURL    string `json:"image_url"`
		IsPublic    bool   `json:"is_public"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if content.IsBlank(body.Name) {
		writeError(w, http.StatusBadRequest, "group name is required")
		return
	}
	g := &model.Group{
		ID:          uuid.New().String(),
		Name:        content.Sanitize(strings.TrimSpace(body.Name)),
		Description: content.Sanitize(body.Description),
		ImageURL:    strings.TrimSpace(body.ImageURL),
		IsPublic:    body.IsPublic,
		CreatedBy:   userID,
		CreatedAt:   time.Now().UTC(),
	}
	if err := h.groups.Create(r.Context(), g); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

// ListJoined returns the groups the caller belongs to.
// GET /api/groups
func (h *GroupHandler) ListJoined(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	groups, err := h.groups.ListJoined(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

// ListPublic returns public groups the caller has not joined yet.
// GET /api/groups/public
func (h *GroupHandler) ListPublic(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	groups, err := h.groups.ListPublic(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

// Search finds groups by name.
// GET /api/groups/search?q=...
func (h *GroupHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeJSON(w, http.StatusOK, []model.Group{})
		return
	}
	groups, err := h.groups.Search(r.Context(), q, searchLimit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

// Join adds the caller as a member.
// POST /api/groups/{id}/join
func (h *GroupHandler) Join(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	groupID := chi.URLParam(r, "id")
	if _, err := h.groups.GetByID(r.Context(), groupID); err != nil {
		writeDomainError(w, err)
		return
	}
	if err := h.groups.AddMember(r.Context(), groupID, userID, model.GroupRoleMember); err != nil {
		writeDomainError(w, err)
		return
	}
	h.memberCache.Invalidate(groupID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "joined"})
}

// Leave removes the caller from the group.
// POST /api/groups/{id}/leave
func (h *GroupHandler) Leave(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	groupID := chi.URLParam(r, "id")
	if err := h.groups.RemoveMember(r.Context(), groupID, userID); err != nil {
		writeDomainError(w, err)
		return
	}
	h.memberCache.Invalidate(groupID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "left"})
}

// Delete removes the group and, via cascade, its memberships and messages.
// Creator-only.
// DELETE /api/groups/{id}
func (h *GroupHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	groupID := chi.URLParam(r, "id")
	g, err := h.groups.GetByID(r.Context(), groupID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if g.CreatedBy != userID {
		writeError(w, http.StatusForbidden, "only the creator can delete a group")
		return
	}
	if err := h.groups.Delete(r.Context(), groupID); err != nil {
		writeDomainError(w, err)
		return
	}
	h.memberCache.Invalidate(groupID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// Members returns the roster with profiles. Member-only.
// GET /api/groups/{id}/members
func (h *GroupHandler) Members(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	groupID := chi.URLParam(r, "id")
	if !h.requireMember(w, r, groupID, userID) {
		return
	}
	members, err := h.groups.GetMembers(r.Context(), groupID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, members)
}

// Messages returns the group history ascending by time. Member-only.
// GET /api/groups/{id}/messages
func (h *GroupHandler) Messages(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	groupID := chi.URLParam(r, "id")
	if !h.requireMember(w, r, groupID, userID) {
		return
	}
	messages, err := h.messages.GroupHistory(r.Context(), groupID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

// Send creates a group message through the hub. Member-only.
// POST /api/groups/{id}/messages
func (h *GroupHandler) Send(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	groupID := chi.URLParam(r, "id")
	var body struct {
		Content string `json:"content"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	m, err := h.hub.SendGroup(r.Context(), userID, groupID, body.Content)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// Pinned returns the group's pinned messages, newest first. Member-only.
// GET /api/groups/{id}/pinned
func (h *GroupHandler) Pinned(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	groupID := chi.URLParam(r, "id")
	if !h.requireMember(w, r, groupID, userID) {
		return
	}
	messages, err := h.messages.PinnedInGroup(r.Context(), groupID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

// Typing returns the users currently typing in the group, excluding the
// caller. Member-only.
// GET /api/groups/{id}/typing
func (h *GroupHandler) Typing(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	groupID := chi.URLParam(r, "id")
	if !h.requireMember(w, r, groupID, userID) {
		return
	}
	users, err := h.store.TypingUsers(r.Context(), ws.GroupScopeKey(groupID))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	typing := make([]string, 0, len(users))
	for _, id := range users {
		if id != userID {
			typing = append(typing, id)
		}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"typing": typing})
}

func (h *GroupHandler) requireMember(w http.ResponseWriter, r *http.Request, groupID, userID string) bool {
	ok, err := h.memberCache.IsMember(r.Context(), groupID, userID)
	if err != nil {
		writeDomainError(w, err)
		return false
	}
	if !ok {
		writeDomainError(w, ws.ErrNotMember)
		return false
	}
	return true
}
