package connection

import (
	"time"

	"github.com/cenkalti/backoff"
)

const (
	// InitialRetryDelay is the delay after the first failed probe
	InitialRetryDelay = 1 * time.Second

	// RetryMultiplier grows the delay after each failed probe
	RetryMultiplier = 1.5

	// MaxRetryDelay caps the delay between probes
	MaxRetryDelay = 30 * time.Second
)

// newPolicy returns the reconnection backoff policy: no jitter and no
// elapsed-time limit, so the loop only ends when the device answers.
func newPolicy() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = InitialRetryDelay
	b.Multiplier = RetryMultiplier
	b.MaxInterval = MaxRetryDelay
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// DelayForAttempt returns the delay to wait after the attempt-th failed
// probe: min(1s * 1.5^(attempt-1), 30s), floored to whole milliseconds.
// Attempts below 1 are treated as 1.
func DelayForAttempt(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	policy := newPolicy()
	var d time.Duration
	for i := 0; i < attempt; i++ {
		d = policy.NextBackOff()
		if d >= policy.MaxInterval {
			break
		}
	}
	return d.Truncate(time.Millisecond)
}
