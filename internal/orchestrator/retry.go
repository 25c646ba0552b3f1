package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
)

// RetryConfig tunes backoff for model calls.
type RetryConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryConfig returns the production defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

// retryableError reports whether err is worth retrying. Provider SDKs
// surface these conditions as strings, not typed errors.
func retryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())

	// Rate limits.
	if containsAny(msg, "rate limit", "quota exceeded", "429") {
		return true
	}
	// Transient server errors.
	if containsAny(msg, "500", "502", "503", "504", "unavailable") {
		return true
	}
	// Network faults.
	if containsAny(msg, "connection reset", "timeout", "temporary") {
		return true
	}
	return false
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// generateWithResilience runs one model call behind the circuit breaker,
// rate limiter, and exponential backoff. Each attempt waits on the rate
// limiter separately so retries cannot stampede a recovering provider.
func (o *Orchestrator) generateWithResilience(ctx context.Context, opts []ai.GenerateOption) (*ai.ModelResponse, error) {
	if err := o.circuitBreaker.Allow(); err != nil {
		o.logger.Warn("model call rejected", "circuit_state", o.circuitBreaker.State().String())
		return nil, fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}

	var lastErr error
	delay := o.retryConfig.InitialInterval
	start := time.Now()

	for attempt := 0; attempt <= o.retryConfig.MaxRetries; attempt++ {
		if o.rateLimiter != nil {
			if err := o.rateLimiter.Wait(ctx); err != nil {
				o.circuitBreaker.Failure()
				return nil, fmt.Errorf("rate limit wait: %w", err)
			}
		}

		resp, err := o.generate(ctx, opts...)
		if err == nil {
			o.circuitBreaker.Success()
			o.logger.Debug("model call complete", "attempts", attempt+1, "elapsed", time.Since(start))
			return resp, nil
		}
		lastErr = err

		if !retryableError(err) {
			o.circuitBreaker.Failure()
			return nil, fmt.Errorf("generate: %w", err)
		}
		if attempt == o.retryConfig.MaxRetries {
			break
		}

		o.logger.Debug("retrying model call",
			"attempt", attempt+1, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			o.circuitBreaker.Failure()
			return nil, fmt.Errorf("canceled during retry: %w", ctx.Err())
		case <-time.After(delay):
			delay = min(delay*2, o.retryConfig.MaxInterval)
		}
	}

	o.circuitBreaker.Failure()
	return nil, fmt.Errorf("%w: %d retries exhausted (elapsed %v): %w",
		ErrModelUnavailable, o.retryConfig.MaxRetries, time.Since(start), lastErr)
}
