package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openinfra/beacon/internal/log"
)

func testRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: time.Millisecond,
		MaxInterval:     4 * time.Millisecond,
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "rate limit", err: errors.New("RATE LIMIT exceeded"), want: true},
		{name: "http 429", err: errors.New("googleapi: Error 429"), want: true},
		{name: "http 503", err: errors.New("503 Service Unavailable"), want: true},
		{name: "connection reset", err: errors.New("read: connection reset by peer"), want: true},
		{name: "timeout", err: errors.New("i/o timeout"), want: true},
		{name: "quota", err: errors.New("quota exceeded for project"), want: true},
		{name: "invalid argument", err: errors.New("invalid argument: bad prompt"), want: false},
		{name: "not found", err: errors.New("model not found"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Retryable(tt.err))
		})
	}
}

func TestRetrySucceedsFirstTry(t *testing.T) {
	calls := 0
	got, err := Retry(context.Background(), testRetryConfig(), log.NewNop(), func(context.Context) (string, error) {
		calls++
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 1, calls)
}

func TestRetryRecoversFromTransientError(t *testing.T) {
	calls := 0
	got, err := Retry(context.Background(), testRetryConfig(), log.NewNop(), func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("503 unavailable")
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 3, calls)
}

func TestRetryFailsFastOnPermanentError(t *testing.T) {
	calls := 0
	permanent := errors.New("invalid request")
	_, err := Retry(context.Background(), testRetryConfig(), log.NewNop(), func(context.Context) (string, error) {
		calls++
		return "", permanent
	})
	require.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), testRetryConfig(), log.NewNop(), func(context.Context) (string, error) {
		calls++
		return "", errors.New("429 too many requests")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 retries")
	assert.Equal(t, 4, calls)
}

func TestRetryStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	cfg := RetryConfig{MaxRetries: 5, InitialInterval: time.Minute, MaxInterval: time.Minute}
	done := make(chan error, 1)
	go func() {
		_, err := Retry(ctx, cfg, log.NewNop(), func(context.Context) (string, error) {
			calls++
			return "", errors.New("timeout")
		})
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("retry did not observe context cancellation")
	}
}

func TestEffectiveRetry(t *testing.T) {
	assert.Equal(t, DefaultRetryConfig(), effectiveRetry(RetryConfig{}))

	noRetry := RetryConfig{MaxRetries: 0, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}
	assert.Equal(t, noRetry, effectiveRetry(noRetry), "explicit no-retry policy must be kept")
}

func TestRetryZeroMaxRetriesMakesOneCall(t *testing.T) {
	calls := 0
	cfg := RetryConfig{MaxRetries: 0, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}
	_, err := Retry(context.Background(), cfg, log.NewNop(), func(context.Context) (string, error) {
		calls++
		return "", errors.New("429 rate limit")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestNewGenkitGeneratorValidation(t *testing.T) {
	_, err := NewGenkitGenerator(nil, GeneratorConfig{ModelName: "googleai/gemini-2.5-flash"}, log.NewNop())
	assert.Error(t, err)
}
