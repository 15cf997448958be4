// Package retry provides retry classification and exponential backoff for
// model calls.
package retry

import (
	"math"
	"math/rand/v2"
	"time"
)

// Policy holds retry configuration parameters.
type Policy struct {
	// MaxAttempts is the maximum number of attempts (default: 3).
	// The initial request counts as attempt 1.
	MaxAttempts int

	// InitialDelay is the base delay before the first retry (default: 500ms).
	InitialDelay time.Duration

	// MaxDelay is the maximum delay between retries (default: 32s).
	MaxDelay time.Duration

	// Multiplier is the exponential backoff multiplier (default: 2.0).
	Multiplier float64

	// Jitter adds randomness to prevent thundering herd (default: 0.1 = 10%).
	// Delay is multiplied by (1 + random(-jitter, +jitter)).
	Jitter float64

	// MaxElapsed bounds the total time spent across attempts and waits
	// (default: 2m). Zero means no bound.
	MaxElapsed time.Duration
}

// DefaultPolicy returns the default retry policy.
//   - 3 max attempts
//   - 500ms initial delay
//   - 32s max delay
//   - 2x exponential multiplier
//   - 10% jitter
//   - 2m total elapsed bound
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     32 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.1,
		MaxElapsed:   2 * time.Minute,
	}
}

// Disabled returns a policy that makes a single attempt.
func Disabled() Policy {
	return Policy{MaxAttempts: 1}
}

// Delay calculates the delay for a given retry number (0-indexed).
// Formula: min(maxDelay, initialDelay * multiplier^attempt) * (1 +/- jitter)
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	mult := p.Multiplier
	if mult <= 0 {
		mult = 1
	}

	delay := float64(p.InitialDelay) * math.Pow(mult, float64(attempt))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}

	if p.Jitter > 0 {
		jitterFactor := 1.0 + (rand.Float64()*2-1)*p.Jitter
		delay *= jitterFactor
	}

	return time.Duration(delay)
}

// Backoff returns the wait before the next attempt after err. A provider
// retry-after hint takes precedence over the computed delay.
func (p Policy) Backoff(attempt int, err error) time.Duration {
	if hint := retryAfterOf(err); hint > 0 {
		return hint
	}
	return p.Delay(attempt)
}

func (p Policy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}
