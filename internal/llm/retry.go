package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// RetryConfig configures retry behavior for provider calls. The same policy
// is applied uniformly to embedding, search, and model calls.
type RetryConfig struct {
	MaxRetries      int           // maximum retry attempts after the first call
	InitialInterval time.Duration // initial backoff interval
	MaxInterval     time.Duration // backoff ceiling
}

// DefaultRetryConfig returns sensible defaults for LLM API calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

// effectiveRetry defaults a zero-value policy. MaxRetries: 0 with intervals
// set is an explicit no-retry policy and is kept as given.
func effectiveRetry(cfg RetryConfig) RetryConfig {
	if cfg == (RetryConfig{}) {
		return DefaultRetryConfig()
	}
	return cfg
}

// retryablePatterns groups error substrings by category, matched
// case-insensitively against err.Error().
//
// NOTE: string matching is used because Genkit and provider SDKs do not
// expose typed sentinel errors for transient failures. Re-evaluate if the
// SDK adds structured error types.
var retryablePatterns = [][]string{
	{"rate limit", "quota exceeded", "429"},      // rate limiting
	{"500", "502", "503", "504", "unavailable"},  // transient server errors
	{"connection reset", "timeout", "temporary"}, // network errors
}

// Retryable reports whether err is transient and should trigger a retry.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	lower := strings.ToLower(err.Error())
	for _, group := range retryablePatterns {
		for _, sub := range group {
			if strings.Contains(lower, sub) {
				return true
			}
		}
	}
	return false
}

// Retry executes fn with exponential backoff on retryable errors.
// Non-retryable errors fail immediately; context cancellation interrupts
// the backoff sleep.
func Retry[T any](ctx context.Context, cfg RetryConfig, logger *slog.Logger, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	delay := cfg.InitialInterval
	start := time.Now()

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			if attempt > 0 && logger != nil {
				logger.Debug("call succeeded after retry",
					"attempts", attempt+1,
					"elapsed", time.Since(start))
			}
			return result, nil
		}

		lastErr = err
		if !Retryable(err) {
			return zero, err
		}
		if attempt == cfg.MaxRetries {
			break
		}

		if logger != nil {
			logger.Debug("retrying after transient error",
				"attempt", attempt+1,
				"delay", delay,
				"error", err)
		}

		select {
		case <-ctx.Done():
			return zero, fmt.Errorf("context canceled during retry: %w", ctx.Err())
		case <-time.After(delay):
			delay = min(delay*2, cfg.MaxInterval)
		}
	}

	return zero, fmt.Errorf("after %d retries (elapsed %v): %w",
		cfg.MaxRetries, time.Since(start), lastErr)
}
