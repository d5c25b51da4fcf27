package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/edutrack/messaging/internal/model"
	"github.com/edutrack/messaging/internal/repository"
	"github.com/edutrack/messaging/internal/storage"
)

// DevSessionHandler mints a profile and a session without the identity
// service. Registered only when the server runs with -dev.
type DevSessionHandler struct {
	profiles   *repository.ProfileRepository
	store      storage.Store
	sessionTTL time.Duration
}

func NewDevSessionHandler(profiles *repository.ProfileRepository, store storage.Store, sessionTTL time.Duration) *DevSessionHandler {
	return &DevSessionHandler{profiles: profiles, store: store, sessionTTL: sessionTTL}
}

// Create upserts a profile for the given email and returns a fresh session id.
// POST /api/auth/dev-session
func (h *DevSessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	email := strings.ToLower(strings.TrimSpace(body.Email))
	if email == "" || !strings.Contains(email, "@") {
		writeError(w, http.StatusBadRequest, "valid email is required")
		return
	}

	p := &model.Profile{
		ID:        uuid.NewSHA1(uuid.NameSpaceURL, []byte("edutrack:"+email)).String(),
		Name:      strings.TrimSpace(body.Name),
		Email:     email,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.profiles.Upsert(r.Context(), p); err != nil {
		writeDomainError(w, err)
		return
	}

	sessionID := uuid.New().String()
	if err := h.store.SetSession(r.Context(), sessionID, p.ID, h.sessionTTL); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"session_id": sessionID,
		"user_id":    p.ID,
	})
}
