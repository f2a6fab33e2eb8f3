package main

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrRetriesExhausted wraps the final rate-limit error once the retry budget
// is spent.
var ErrRetriesExhausted = errors.New("rate limit retries exhausted")

const (
	// 1 initial attempt + 3 retries.
	defaultMaxAttempts = 4

	// Waits for a provider-suggested retry hint are clamped to this range;
	// without a hint the fallback applies.
	minRateLimitWait      = 30 * time.Second
	maxRateLimitWait      = 120 * time.Second
	fallbackRateLimitWait = 60 * time.Second
)

// rateLimitSignals are the substrings that mark an error as transient
// provider throttling. Anything else is a permanent failure and is never
// retried.
var rateLimitSignals = []string{
	"429",
	"resource_exhausted",
	"quota",
	"rate_limit",
	"rate limit",
	"too many requests",
}

var retryHintPattern = regexp.MustCompile(`(?i)retry in (\d+(?:\.\d+)?)\s*s`)

// RateLimitPolicy wraps a single flaky remote call with bounded retry for
// rate-limit failures. This is distinct from the per-item delay a stage
// applies after every item: the policy reacts to throttling within one call,
// the per-item delay spreads load to avoid throttling in the first place.
type RateLimitPolicy struct {
	MaxAttempts int
	Logger      *slog.Logger

	// Sleep is swappable in tests; nil means time.Sleep.
	Sleep func(time.Duration)
}

// NewRateLimitPolicy returns the policy with the fixed default budget.
func NewRateLimitPolicy(logger *slog.Logger) *RateLimitPolicy {
	return &RateLimitPolicy{MaxAttempts: defaultMaxAttempts, Logger: logger}
}

// Do attempts call until it succeeds, fails permanently, or the attempt
// budget runs out. Non-rate-limit errors are returned unchanged after the
// first attempt.
func (p *RateLimitPolicy) Do(desc string, call func() error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := call()
		if err == nil {
			return nil
		}
		if !IsRateLimitError(err) {
			return err
		}
		lastErr = err
		if attempt == attempts {
			break
		}

		wait := rateLimitWait(err.Error())
		if p.Logger != nil {
			p.Logger.Warn("rate limited, backing off",
				"operation", desc,
				"wait", wait,
				"attempt", attempt,
				"max_attempts", attempts)
		}
		sleep(wait)
	}
	return fmt.Errorf("%w after %d attempts: %s", ErrRetriesExhausted, attempts, lastErr)
}

// IsRateLimitError classifies an error as transient provider throttling by
// matching known signal substrings in the error text. Best effort: providers
// phrase throttling differently and the set here is the union observed across
// OpenAI, Gemini, and YouTube responses.
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, signal := range rateLimitSignals {
		if strings.Contains(msg, signal) {
			return true
		}
	}
	return false
}

// rateLimitWait extracts a provider-suggested "retry in N s" hint from the
// error text, clamped to [30s, 120s]; without a parsable hint it returns the
// fixed fallback.
func rateLimitWait(errText string) time.Duration {
	match := retryHintPattern.FindStringSubmatch(errText)
	if match == nil {
		return fallbackRateLimitWait
	}
	seconds, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return fallbackRateLimitWait
	}
	wait := time.Duration(seconds * float64(time.Second))
	if wait < minRateLimitWait {
		return minRateLimitWait
	}
	if wait > maxRateLimitWait {
		return maxRateLimitWait
	}
	return wait
}
