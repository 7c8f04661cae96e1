package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorChaining(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewError(ErrStoreUnavailable, "persistence call failed").
		WithEntityID("r1").
		WithRetryable(true).
		WithCause(cause)

	assert.Equal(t, ErrStoreUnavailable, GetErrorCode(err))
	assert.True(t, IsRetryable(err))
	assert.True(t, IsCode(err, ErrStoreUnavailable))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "persistence call failed")
}

func TestErrorThroughWrapping(t *testing.T) {
	inner := NewError(ErrLowConfidence, "confidence 0.50 below threshold 0.70").WithEntityID("v1")
	wrapped := fmt.Errorf("set verification: %w", inner)

	assert.True(t, IsCode(wrapped, ErrLowConfidence))
	assert.Equal(t, ErrLowConfidence, GetErrorCode(wrapped))
	assert.False(t, IsRetryable(wrapped))
}

func TestGetErrorCode_Unclassified(t *testing.T) {
	assert.Equal(t, ErrorCode(""), GetErrorCode(errors.New("plain")))
	assert.Equal(t, ErrorCode(""), GetErrorCode(nil))
}

func TestRetryableDefaults(t *testing.T) {
	// 低置信拒绝与校验错误永不重试
	assert.False(t, IsRetryable(NewError(ErrLowConfidence, "rejected")))
	assert.False(t, IsRetryable(NewError(ErrValidation, "bad input")))

	// 普通错误不重试
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestWithRetryableOverride(t *testing.T) {
	err := NewError(ErrGateUnavailable, "gate down").WithRetryable(true)
	require.True(t, IsRetryable(err))

	err = err.WithRetryable(false)
	assert.False(t, IsRetryable(err))
}
