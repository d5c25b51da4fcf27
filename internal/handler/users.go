package handler

import (
	"errors"
	"net/http"

	"github.com/edutrack/messaging/internal/middleware"
	"github.com/edutrack/messaging/internal/repository"
)

// UserHandler serves the friend directory: every profile except one's own.
type UserHandler struct {
	profiles *repository.ProfileRepository
}

func NewUserHandler(profiles *repository.ProfileRepository) *UserHandler {
	return &UserHandler{profiles: profiles}
}

// List returns all candidate profiles, excluding the caller.
// GET /api/users
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	profiles, err := h.profiles.ListCandidates(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profiles)
}

// Me returns the caller's own profile.
// GET /api/users/me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	p, err := h.profiles.GetByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "profile not found")
			return
		}
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
