package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/edutrack/messaging/internal/logger"
	"github.com/edutrack/messaging/internal/repository"
	"github.com/edutrack/messaging/internal/ws"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Errorf("handler: write json: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps validation and authorization errors from the hub and
// repositories to HTTP statuses. Anything unmapped is a 500.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ws.ErrEmptyMessage), errors.Is(err, ws.ErrBadEmoji),
		errors.Is(err, ws.ErrNotGroupMessage):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ws.ErrNotFriends), errors.Is(err, ws.ErrNotMember),
		errors.Is(err, ws.ErrNotAuthor), errors.Is(err, ws.ErrNotParticipant):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, repository.ErrDuplicate):
		writeError(w, http.StatusConflict, "already exists")
	default:
		logger.Errorf("handler: internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
