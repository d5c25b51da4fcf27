package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePair(t *testing.T) {
	lo, hi := NormalizePair("b", "a")
	assert.Equal(t, "a", lo)
	assert.Equal(t, "b", hi)

	lo2, hi2 := NormalizePair("a", "b")
	assert.Equal(t, lo, lo2)
	assert.Equal(t, hi, hi2)
}

func TestDisplayNameFallsBackToEmail(t *testing.T) {
	p := Profile{Name: "Alice", Email: "alice@school.edu"}
	assert.Equal(t, "Alice", p.DisplayName())

	p.Name = ""
	assert.Equal(t, "alice", p.DisplayName())
}
