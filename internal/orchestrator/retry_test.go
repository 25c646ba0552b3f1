package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/firebase/genkit/go/ai"

	"github.com/cartageio/cartage/internal/log"
)

func TestRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limit", errors.New("RATE LIMIT exceeded"), true},
		{"quota", errors.New("quota exceeded for project"), true},
		{"429", errors.New("HTTP 429 Too Many Requests"), true},
		{"503", errors.New("503 Service Unavailable"), true},
		{"connection reset", errors.New("read: connection reset by peer"), true},
		{"timeout", errors.New("context deadline exceeded (timeout)"), true},
		{"bad api key", errors.New("invalid API key"), false},
		{"malformed request", errors.New("400 bad request"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := retryableError(tt.err); got != tt.want {
				t.Errorf("retryableError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

// retryHarness builds a minimal Orchestrator for exercising
// generateWithResilience without the full turn machinery.
func retryHarness(gen generateFunc) *Orchestrator {
	return &Orchestrator{
		logger: log.NewNop(),
		retryConfig: RetryConfig{
			MaxRetries:      2,
			InitialInterval: time.Millisecond,
			MaxInterval:     5 * time.Millisecond,
		},
		circuitBreaker: NewCircuitBreaker(CircuitBreakerConfig{}),
		generate:       gen,
	}
}

func TestGenerateWithResilience_RetriesTransientErrors(t *testing.T) {
	calls := 0
	o := retryHarness(func(_ context.Context, _ ...ai.GenerateOption) (*ai.ModelResponse, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("503 service unavailable")
		}
		return textResponse("recovered"), nil
	})

	resp, err := o.generateWithResilience(context.Background(), nil)
	if err != nil {
		t.Fatalf("generateWithResilience() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if resp.Text() != "recovered" {
		t.Errorf("text = %q, want recovered", resp.Text())
	}
}

func TestGenerateWithResilience_FailsFastOnPermanentError(t *testing.T) {
	calls := 0
	o := retryHarness(func(_ context.Context, _ ...ai.GenerateOption) (*ai.ModelResponse, error) {
		calls++
		return nil, errors.New("invalid api key")
	})

	if _, err := o.generateWithResilience(context.Background(), nil); err == nil {
		t.Fatal("error = nil, want permanent failure")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry on permanent error)", calls)
	}
}

func TestGenerateWithResilience_ExhaustsRetries(t *testing.T) {
	calls := 0
	o := retryHarness(func(_ context.Context, _ ...ai.GenerateOption) (*ai.ModelResponse, error) {
		calls++
		return nil, errors.New("429 too many requests")
	})

	_, err := o.generateWithResilience(context.Background(), nil)
	if !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("error = %v, want ErrModelUnavailable", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want MaxRetries+1 = 3", calls)
	}
}

func TestGenerateWithResilience_OpenCircuitRejectsImmediately(t *testing.T) {
	calls := 0
	o := retryHarness(func(_ context.Context, _ ...ai.GenerateOption) (*ai.ModelResponse, error) {
		calls++
		return nil, errors.New("unreachable")
	})
	for i := 0; i < 5; i++ {
		o.circuitBreaker.Failure()
	}

	_, err := o.generateWithResilience(context.Background(), nil)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("error = %v, want ErrCircuitOpen", err)
	}
	if calls != 0 {
		t.Errorf("calls = %d, want 0 while circuit open", calls)
	}
}
