package main

import (
	"errors"
	"testing"
	"time"
)

func TestRateLimitRetryThenSuccess(t *testing.T) {
	var sleeps []time.Duration
	policy := &RateLimitPolicy{
		MaxAttempts: 4,
		Sleep:       func(d time.Duration) { sleeps = append(sleeps, d) },
	}

	calls := 0
	err := policy.Do("test", func() error {
		calls++
		if calls <= 3 {
			return errors.New("429 Too Many Requests")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if calls != 4 {
		t.Errorf("expected 4 calls, got %d", calls)
	}
	if len(sleeps) != 3 {
		t.Fatalf("expected 3 sleeps, got %d", len(sleeps))
	}
	for _, d := range sleeps {
		if d != fallbackRateLimitWait {
			t.Errorf("expected fallback wait %v without a hint, got %v", fallbackRateLimitWait, d)
		}
	}
}

func TestRateLimitRetriesExhausted(t *testing.T) {
	policy := &RateLimitPolicy{
		MaxAttempts: 4,
		Sleep:       func(time.Duration) {},
	}

	calls := 0
	err := policy.Do("test", func() error {
		calls++
		return errors.New("RESOURCE_EXHAUSTED: quota exceeded")
	})
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("expected ErrRetriesExhausted, got %v", err)
	}
	if calls != 4 {
		t.Errorf("expected 4 calls, got %d", calls)
	}
}

func TestPermanentErrorNotRetried(t *testing.T) {
	policy := &RateLimitPolicy{
		MaxAttempts: 4,
		Sleep: func(time.Duration) {
			t.Fatal("permanent errors must not sleep")
		},
	}

	permanent := errors.New("invalid api key")
	calls := 0
	err := policy.Do("test", func() error {
		calls++
		return permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("expected the original error unchanged, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected a single call, got %d", calls)
	}
}

func TestIsRateLimitError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"http 429", errors.New("server returned 429"), true},
		{"gemini quota", errors.New("RESOURCE_EXHAUSTED: Quota exceeded"), true},
		{"openai style", errors.New("rate_limit_exceeded"), true},
		{"spelled out", errors.New("Too Many Requests"), true},
		{"auth failure", errors.New("401 unauthorized"), false},
		{"network", errors.New("connection refused"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRateLimitError(tt.err); got != tt.want {
				t.Errorf("IsRateLimitError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestRateLimitWaitHintClamped(t *testing.T) {
	tests := []struct {
		name string
		text string
		want time.Duration
	}{
		{"no hint", "429 too many requests", 60 * time.Second},
		{"hint in range", "rate limited, retry in 45s", 45 * time.Second},
		{"hint below minimum", "please retry in 5s", 30 * time.Second},
		{"hint above maximum", "retry in 600s", 120 * time.Second},
		{"fractional hint", "Retry in 42.5 s", 42500 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := rateLimitWait(tt.text); got != tt.want {
				t.Errorf("rateLimitWait(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}
