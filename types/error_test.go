package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_ChainingAndHelpers(t *testing.T) {
	t.Parallel()

	root := errors.New("root")
	err := NewError(ErrCodeUpstream, "upstream failed").
		WithCause(root).
		WithHTTPStatus(502).
		WithRetryable(true).
		WithModel("gpt-4o")

	assert.Equal(t, ErrCodeUpstream, GetErrorCode(err))
	assert.True(t, IsRetryable(err))
	assert.ErrorIs(t, err, root)
	assert.Contains(t, err.Error(), "upstream failed")
	assert.Equal(t, "gpt-4o", err.Model)
}

func TestError_WrappedLookup(t *testing.T) {
	t.Parallel()

	inner := NewError(ErrCodeRateLimit, "slow down").WithRetryable(true)
	wrapped := fmt.Errorf("call model: %w", inner)

	got, ok := AsError(wrapped)
	require.True(t, ok)
	assert.Same(t, inner, got)
	assert.True(t, IsRetryable(wrapped))
	assert.True(t, IsErrorCode(wrapped, ErrCodeRateLimit))

	assert.False(t, IsRetryable(errors.New("plain")))
	assert.Equal(t, ErrorCode(""), GetErrorCode(nil))
}

func TestNewValidationError(t *testing.T) {
	t.Parallel()

	err := NewValidationError("message %s has no content", "m1")
	assert.Equal(t, ErrCodeValidation, err.Code)
	assert.Equal(t, "message m1 has no content", err.Message)
	assert.False(t, err.Retryable)
}
