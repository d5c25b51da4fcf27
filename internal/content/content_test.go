package content

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeStripsMarkup(t *testing.T) {
	assert.Equal(t, "hello", Sanitize("<b>hello</b>"))
	assert.Equal(t, "", Sanitize("<script>alert(1)</script>"))
	assert.Equal(t, "plain text stays", Sanitize("plain text stays"))
}

func TestIsBlank(t *testing.T) {
	assert.True(t, IsBlank(""))
	assert.True(t, IsBlank("   \t\n  "))
	assert.False(t, IsBlank(" x "))
}

func TestValidEmoji(t *testing.T) {
	assert.True(t, ValidEmoji("🎉"))
	assert.True(t, ValidEmoji("👍🏽"))
	assert.True(t, ValidEmoji(":+1:"))

	assert.False(t, ValidEmoji(""))
	assert.False(t, ValidEmoji("has space"))
	assert.False(t, ValidEmoji("way too long for a reaction key"))
	assert.False(t, ValidEmoji(string([]byte{0xff, 0xfe})))
}
