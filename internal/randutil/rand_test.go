package randutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewIsReproducible(t *testing.T) {
	a, b := New(42), New(42)
	for range 10 {
		assert.Equal(t, a.Uint64(), b.Uint64())
	}
	assert.NotEqual(t, New(1).Uint64(), New(2).Uint64())
}

func TestSeedFrom(t *testing.T) {
	now := time.Date(2024, 3, 1, 19, 0, 0, 0, time.UTC)
	assert.Equal(t, SeedFrom(now), SeedFrom(now))
	assert.NotEqual(t, SeedFrom(now), SeedFrom(now.Add(time.Nanosecond)))
	assert.Positive(t, SeedFrom(now))
}
