package handler

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/edutrack/messaging/internal/repository"
	"github.com/edutrack/messaging/internal/ws"
)

func TestWriteDomainErrorStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{ws.ErrEmptyMessage, http.StatusBadRequest},
		{ws.ErrBadEmoji, http.StatusBadRequest},
		{ws.ErrNotGroupMessage, http.StatusBadRequest},
		{ws.ErrNotFriends, http.StatusForbidden},
		{ws.ErrNotMember, http.StatusForbidden},
		{ws.ErrNotAuthor, http.StatusForbidden},
		{ws.ErrNotParticipant, http.StatusForbidden},
		{repository.ErrNotFound, http.StatusNotFound},
		{repository.ErrDuplicate, http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		writeDomainError(rec, tc.err)
		assert.Equal(t, tc.want, rec.Code, "error %v", tc.err)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	}
}

func TestDecodeBodyRejectsGarbage(t *testing.T) {
	var v struct {
		Content string `json:"content"`
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	assert.False(t, decodeBody(rec, req, &v))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"content":"hi"}`))
	rec = httptest.NewRecorder()
	assert.True(t, decodeBody(rec, req, &v))
	assert.Equal(t, "hi", v.Content)
}
