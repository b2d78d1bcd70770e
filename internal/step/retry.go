// Copyright 2025 ChaosChain

package step

import (
	"math/rand"
	"time"
)

// RetryPolicy is the exponential-backoff-with-jitter schedule from spec
// §4.8: max attempts (default 5), initial delay (1s), multiplier (2x),
// cap (30s), jitter (±20%).
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64
	Cap          time.Duration
	Jitter       float64
}

// DefaultRetryPolicy returns the gateway's default retry policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  5,
		InitialDelay: 1 * time.Second,
		Multiplier:   2.0,
		Cap:          30 * time.Second,
		Jitter:       0.2,
	}
}

// BackoffFor returns the delay before retry attempt n (1-indexed),
// exponential up to Cap, then jittered by ±Jitter fraction.
func (p RetryPolicy) BackoffFor(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := float64(p.InitialDelay)
	for i := 1; i < attempt; i++ {
		base *= p.Multiplier
		if base > float64(p.Cap) {
			base = float64(p.Cap)
			break
		}
	}

	jitterRange := base * p.Jitter
	delta := (rand.Float64()*2 - 1) * jitterRange
	d := time.Duration(base + delta)
	if d < 0 {
		d = 0
	}
	return d
}

// Exhausted reports whether attempt has used up the policy's budget.
func (p RetryPolicy) Exhausted(attempt int) bool {
	return attempt >= p.MaxAttempts
}
