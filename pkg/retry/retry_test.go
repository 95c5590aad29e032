package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() *Config {
	return &Config{
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestDo_SucceedsAfterFailures(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastConfig(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDo_ExhaustsRetries(t *testing.T) {
	attempts := 0
	wantErr := errors.New("always fails")

	err := Do(context.Background(), fastConfig(), func() error {
		attempts++
		return wantErr
	})

	require.ErrorIs(t, err, wantErr)
	assert.Equal(t, 4, attempts) // initial attempt + 3 retries
}

func TestDo_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	err := Do(ctx, &Config{MaxRetries: 5, InitialDelay: time.Hour, Multiplier: 2}, func() error {
		attempts++
		cancel()
		return errors.New("fail")
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestDoWithResult(t *testing.T) {
	attempts := 0
	result, err := DoWithResult(context.Background(), fastConfig(), func() (string, error) {
		attempts++
		if attempts < 2 {
			return "", errors.New("transient")
		}
		return "value", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "value", result)
	assert.Equal(t, 2, attempts)
}

type declaredRetryable struct{ retryable bool }

func (e *declaredRetryable) Error() string     { return "declared" }
func (e *declaredRetryable) IsRetryable() bool { return e.retryable }

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"declared retryable", &declaredRetryable{retryable: true}, true},
		{"declared permanent", &declaredRetryable{retryable: false}, false},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"rate limit", errors.New("429 Too Many Requests"), true},
		{"timeout", fmt.Errorf("request failed: i/o timeout"), true},
		{"auth failure", errors.New("invalid api key"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestDoIfRetryableWithResult(t *testing.T) {
	attempts := 0
	result, err := DoIfRetryableWithResult(context.Background(), fastConfig(), func() (string, error) {
		attempts++
		if attempts < 2 {
			return "", errors.New("503 service unavailable")
		}
		return "value", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "value", result)
	assert.Equal(t, 2, attempts)
}

func TestDoIfRetryableWithResult_PermanentErrorNotRetried(t *testing.T) {
	attempts := 0
	_, err := DoIfRetryableWithResult(context.Background(), fastConfig(), func() (int, error) {
		attempts++
		return 0, errors.New("402 payment required")
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestDoIfRetryable_PermanentErrorNotRetried(t *testing.T) {
	attempts := 0
	err := DoIfRetryable(context.Background(), fastConfig(), func() error {
		attempts++
		return &declaredRetryable{retryable: false}
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestDoIfRetryable_TransientErrorRetried(t *testing.T) {
	attempts := 0
	err := DoIfRetryable(context.Background(), fastConfig(), func() error {
		attempts++
		if attempts < 2 {
			return &declaredRetryable{retryable: true}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}
