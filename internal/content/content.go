// Package content validates and sanitizes user-supplied message text before
// it is persisted or fanned out.
package content

import (
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

var policy = bluemonday.StrictPolicy()

const maxEmojiLen = 16

// Sanitize strips all HTML from the input. Messages are plain text; anything
// resembling markup is removed rather than escaped.
func Sanitize(input string) string {
	return policy.Sanitize(input)
}

// IsBlank reports whether the text is empty or whitespace-only. Blank sends
// must never create a message.
func IsBlank(text string) bool {
	return strings.TrimSpace(text) == ""
}

// ValidEmoji bounds the reaction key: non-empty, short, valid UTF-8, no
// whitespace. The reaction map is keyed by whatever the client sends, so the
// key must be kept sane here.
func ValidEmoji(emoji string) bool {
	if emoji == "" || len(emoji) > maxEmojiLen || !utf8.ValidString(emoji) {
		return false
	}
	return !strings.ContainsAny(emoji, " \t\n\r")
}
