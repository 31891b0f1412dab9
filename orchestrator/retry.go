package orchestrator

import (
	"math"
	"time"

	"cuttlefish/core"
)

// RetryPolicy is the pure retry configuration the orchestrator applies to
// transient failures. Rate limits sit outside the attempt budget: they are
// retried exactly once, after the hint the API supplied or RateLimitDelay.
type RetryPolicy struct {
	MaxAttempts    int           // total tries per image, including the first
	BaseDelay      time.Duration // wait before the first retry
	Multiplier     float64       // backoff growth per further retry
	RateLimitDelay time.Duration // fallback wait when a rate limit carries no hint
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		BaseDelay:      500 * time.Millisecond,
		Multiplier:     2,
		RateLimitDelay: 10 * time.Second,
	}
}

// PolicyFromConfig builds the retry policy from the tuning knobs, falling
// back to the defaults for anything left unset.
func PolicyFromConfig(conf *core.Config) RetryPolicy {
	policy := DefaultRetryPolicy()
	if conf.MaxAttempts > 0 {
		policy.MaxAttempts = conf.MaxAttempts
	}
	if conf.RetryBaseDelay > 0 {
		policy.BaseDelay = conf.RetryBaseDelay
	}
	if conf.RateLimitDelay > 0 {
		policy.RateLimitDelay = conf.RateLimitDelay
	}
	return policy
}

// Delay returns the backoff before retry n, counted from 1.
func (p RetryPolicy) Delay(retry int) time.Duration {
	if retry < 1 {
		retry = 1
	}
	backoff := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(retry-1))
	return time.Duration(backoff)
}
