package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindFromCode(t *testing.T) {
	tests := []struct {
		code string
		want Kind
	}{
		{ErrCodeConfigInvalid, KindConfig},
		{ErrCodeFileNotFound, KindIO},
		{ErrCodeParseFailure, KindIO},
		{ErrCodeUpstreamTimeout, KindTransient},
		{ErrCodeDimensionMismatch, KindInvariant},
		{ErrCodeInternal, KindInternal},
		{ErrCodeIndexUnavailable, KindSearch},
		{ErrCodeUnauthenticated, KindAuth},
		{ErrCodeCancelled, KindCancelled},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, New(tt.code, "msg", nil).Kind, tt.code)
	}
}

func TestRetryableCodes(t *testing.T) {
	assert.True(t, New(ErrCodeUpstreamTimeout, "", nil).Retryable)
	assert.True(t, New(ErrCodeStorageUnavailable, "", nil).Retryable)
	assert.False(t, New(ErrCodeInvariantViolation, "", nil).Retryable)
	assert.False(t, New(ErrCodeIndexUnavailable, "", nil).Retryable)
}

func TestErrorIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("searching: %w", New(ErrCodeIndexUnavailable, "missing", nil))
	assert.True(t, stderrors.Is(err, ErrIndexUnavailable))
	assert.False(t, stderrors.Is(err, ErrSearchUnavailable))
}

func TestUnwrap(t *testing.T) {
	cause := stderrors.New("boom")
	err := Wrap(ErrCodeStorageFailed, cause)
	assert.True(t, stderrors.Is(err, cause))
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestWithDetail(t *testing.T) {
	err := New(ErrCodeFileTooLarge, "too big", nil).
		WithDetail("path", "big.bin").
		WithDetail("bytes", "2097152")
	assert.Equal(t, "big.bin", err.Details["path"])
	assert.Equal(t, "2097152", err.Details["bytes"])
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}

	calls := 0
	err := Retry(context.Background(), cfg, func() error {
		calls++
		if calls < 3 {
			return stderrors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryExhausts(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}

	calls := 0
	err := Retry(context.Background(), cfg, func() error {
		calls++
		return stderrors.New("always")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls, "initial attempt plus two retries")
}

func TestRetryHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{MaxRetries: 10, InitialDelay: 50 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2}

	cancel()
	err := Retry(ctx, cfg, func() error { return stderrors.New("x") })
	require.Error(t, err)
	assert.Equal(t, ErrCodeCancelled, CodeOf(err))
}

func TestRetryFailsFastOnNonRetryable(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 5, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}

	calls := 0
	err := Retry(context.Background(), cfg, func() error {
		calls++
		return New(ErrCodeDimensionMismatch, "wrong dims", nil)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls, "non-retryable errors are not retried")
}

func TestRetryWithResult(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}

	calls := 0
	got, err := RetryWithResult(context.Background(), cfg, func() (string, error) {
		calls++
		if calls == 1 {
			return "", stderrors.New("once")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
}
