package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, ":8080", cfg.ServerAddr)
	assert.Equal(t, 10000, cfg.MaxWSConnections)
	assert.Equal(t, 256, cfg.WSSendBufferSize)
	assert.Equal(t, 2*time.Second, cfg.TypingTTL())
	assert.Equal(t, 20, cfg.DBMaxConnections())
	assert.NotEmpty(t, cfg.DatabaseURL())
	assert.NotEmpty(t, cfg.PushSubscriber)
}

func TestEnvOverridesDefaults(t *testing.T) {
	t.Setenv("SERVER_ADDR", ":9999")
	t.Setenv("TYPING_TTL_MILLIS", "750")
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/app")
	t.Setenv("MAX_WS_CONNECTIONS", "42")

	cfg := Load()

	assert.Equal(t, ":9999", cfg.ServerAddr)
	assert.Equal(t, 750*time.Millisecond, cfg.TypingTTL())
	assert.Equal(t, "postgres://u:p@db:5432/app", cfg.DatabaseURL())
	assert.Equal(t, 42, cfg.MaxWSConnections)
}

func TestTypingTTLFallsBackWhenUnset(t *testing.T) {
	cfg := &Config{TypingTTLMillis: 0}
	assert.Equal(t, 2*time.Second, cfg.TypingTTL())

	cfg.TypingTTLMillis = 1500
	assert.Equal(t, 1500*time.Millisecond, cfg.TypingTTL())
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("SOME_STR", "value")
	assert.Equal(t, "value", envStr("SOME_STR", "fallback"))
	assert.Equal(t, "fallback", envStr("MISSING_STR", "fallback"))

	t.Setenv("SOME_INT", "7")
	assert.Equal(t, 7, envInt("SOME_INT", 1))
	t.Setenv("BAD_INT", "seven")
	assert.Equal(t, 1, envInt("BAD_INT", 1))
	assert.Equal(t, 1, envInt("MISSING_INT", 1))
}
