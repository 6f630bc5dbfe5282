package errors

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError(t *testing.T) {
	err := NewAppError(ErrInvalidInput, "username missing", 400)

	assert.Equal(t, "username missing: invalid input", err.Error())
	assert.True(t, errors.Is(err, ErrInvalidInput))

	bare := NewAppError(ErrInvalidInput, "", 400)
	assert.Equal(t, "invalid input", bare.Error())
}

func TestLockedError(t *testing.T) {
	until := time.Date(2024, 3, 1, 12, 15, 0, 0, time.UTC)
	err := fmt.Errorf("login: %w", NewLockedError(until, 10*time.Minute+400*time.Millisecond))

	assert.True(t, errors.Is(err, ErrAccountLocked))

	var locked *LockedError
	require.True(t, errors.As(err, &locked))
	assert.Equal(t, until, locked.Until)
	assert.Equal(t, 10*time.Minute+400*time.Millisecond, locked.Remaining)
	assert.Contains(t, err.Error(), "try again in 10m0s")
}
