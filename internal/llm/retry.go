package llm

import (
	"context"
	"errors"
	"math"
	"net"
	"net/http"
	"time"

	"github.com/openai/openai-go"

	"github.com/spherical/mcq-extractor/internal/observability"
)

const (
	maxRetries     = 3
	initialBackoff = 1 * time.Second
	maxBackoff     = 30 * time.Second
)

// RetryConfig holds retry configuration
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     maxRetries,
		InitialBackoff: initialBackoff,
		MaxBackoff:     maxBackoff,
	}
}

// ErrorClass buckets a failed model call
type ErrorClass int

const (
	// ClassUnit failures cost one content group and nothing else
	ClassUnit ErrorClass = iota
	// ClassTransient failures are rate limits and temporary unavailability
	ClassTransient
	// ClassFatal failures (bad credential, unknown model) abort the run
	ClassFatal
)

func (c ErrorClass) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassFatal:
		return "fatal"
	default:
		return "unit"
	}
}

// classifyStatus maps an HTTP status from the model endpoint to an error class
func classifyStatus(statusCode int) ErrorClass {
	switch statusCode {
	case http.StatusTooManyRequests, // 429
		http.StatusInternalServerError, // 500
		http.StatusBadGateway,          // 502
		http.StatusServiceUnavailable,  // 503
		http.StatusGatewayTimeout:      // 504
		return ClassTransient
	case http.StatusUnauthorized, // 401
		http.StatusPaymentRequired, // 402
		http.StatusForbidden,       // 403
		http.StatusNotFound:        // 404
		return ClassFatal
	default:
		return ClassUnit
	}
}

// Classify inspects an error returned by the model client
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassUnit
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.StatusCode)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTransient
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassTransient
	}

	return ClassUnit
}

// calculateBackoff calculates exponential backoff duration
func calculateBackoff(attempt int, config RetryConfig) time.Duration {
	// Exponential backoff: initialBackoff * 2^attempt
	backoff := float64(config.InitialBackoff) * math.Pow(2, float64(attempt))

	if backoff > float64(config.MaxBackoff) {
		backoff = float64(config.MaxBackoff)
	}

	return time.Duration(backoff)
}

// Decide is the retry policy: given how many attempts have already failed
// (0 after the first failure) and the class of the last failure, it returns
// whether to try again and how long to wait first.
func Decide(attempt int, class ErrorClass, config RetryConfig) (bool, time.Duration) {
	if class != ClassTransient || attempt >= config.MaxRetries {
		return false, 0
	}
	return true, calculateBackoff(attempt, config)
}

// retryWithBackoff runs call until it succeeds, Decide refuses another
// attempt, or ctx is done. The last error is returned unchanged.
func retryWithBackoff(ctx context.Context, config RetryConfig, logger *observability.Logger, call func(context.Context) error) error {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := call(ctx)
		if err == nil {
			return nil
		}

		// The caller gave up; a deadline on ctx itself is not a transient failure.
		if ctx.Err() != nil {
			return err
		}

		class := Classify(err)
		retry, backoff := Decide(attempt, class, config)
		if !retry {
			return err
		}

		logger.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Int("max_retries", config.MaxRetries).
			Dur("backoff", backoff).
			Msg("Model request failed, retrying")

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
