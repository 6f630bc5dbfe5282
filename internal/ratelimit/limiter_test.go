package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirk1998/accounts/pkg/errors"
)

func TestCheckLimit(t *testing.T) {
	rl := NewRateLimiter(1, 2)

	require.NoError(t, rl.CheckLimit("login:alice"))
	require.NoError(t, rl.CheckLimit("login:alice"))
	assert.ErrorIs(t, rl.CheckLimit("login:alice"), errors.ErrRateLimitExceeded)

	// keys are independent
	assert.NoError(t, rl.CheckLimit("login:bob"))
}

func TestReset(t *testing.T) {
	rl := NewRateLimiter(1, 1)

	require.NoError(t, rl.CheckLimit("login:alice"))
	require.Error(t, rl.CheckLimit("login:alice"))

	rl.Reset("login:alice")
	assert.NoError(t, rl.CheckLimit("login:alice"))
}

func TestCleanup(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(10, 10)
	rl.now = func() time.Time { return now }

	rl.Allow("stale")
	now = now.Add(2 * time.Hour)
	rl.Allow("fresh")
	require.Equal(t, 2, rl.Len())

	rl.Cleanup(time.Hour)
	assert.Equal(t, 1, rl.Len())

	// the fresh key keeps its bucket
	rl.mu.Lock()
	_, ok := rl.limiters["fresh"]
	rl.mu.Unlock()
	assert.True(t, ok)
}
