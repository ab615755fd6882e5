package xbreaker

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerError(t *testing.T) {
	err := &BreakerError{Err: ErrOpenState, Name: "orders", State: StateOpen}

	assert.Contains(t, err.Error(), "orders")
	assert.ErrorIs(t, err, ErrOpenState)
	assert.False(t, err.Retryable())
}

func TestBreakerError_Wrapped(t *testing.T) {
	inner := &BreakerError{Err: ErrTooManyRequests, Name: "orders", State: StateHalfOpen}
	wrapped := fmt.Errorf("call failed: %w", inner)

	// 多层包装后仍可识别
	assert.True(t, IsTooManyRequests(wrapped))
	assert.True(t, IsBreakerError(wrapped))

	var be *BreakerError
	require.ErrorAs(t, wrapped, &be)
	assert.Equal(t, StateHalfOpen, be.State)
}

func TestIsOpen(t *testing.T) {
	assert.True(t, IsOpen(ErrOpenState))
	assert.True(t, IsOpen(&BreakerError{Err: ErrOpenState, Name: "x", State: StateOpen}))
	assert.False(t, IsOpen(ErrTooManyRequests))
	assert.False(t, IsOpen(errors.New("other")))
	assert.False(t, IsOpen(nil))
}

func TestIsTooManyRequests(t *testing.T) {
	assert.True(t, IsTooManyRequests(ErrTooManyRequests))
	assert.False(t, IsTooManyRequests(ErrOpenState))
	assert.False(t, IsTooManyRequests(nil))
}

func TestIsBreakerError(t *testing.T) {
	assert.True(t, IsBreakerError(&BreakerError{Err: ErrOpenState, Name: "x", State: StateOpen}))
	assert.False(t, IsBreakerError(ErrOpenState))
	assert.False(t, IsBreakerError(nil))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(99).String())
}
