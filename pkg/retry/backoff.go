package retry

import (
	"math"
	"math/rand"
	"time"
)

// BackoffStrategy defines how to calculate the next retry time.
type BackoffStrategy int

const (
	// BackoffExponential uses exponential backoff: base * 2^(attempt-1)
	BackoffExponential BackoffStrategy = iota

	// BackoffLinear uses linear backoff: base * attempt
	BackoffLinear

	// BackoffConstant uses constant backoff: base (no increase)
	BackoffConstant
)

// BackoffConfig configures the backoff behavior.
type BackoffConfig struct {
	// Strategy is the backoff strategy to use.
	// Default is BackoffExponential.
	Strategy BackoffStrategy

	// BaseInterval is the base interval for backoff calculation.
	// Default is DefaultRetryInterval (5 minutes).
	BaseInterval time.Duration

	// MaxInterval is the maximum interval between retries.
	// Default is 48 hours.
	MaxInterval time.Duration

	// Jitter adds randomness to prevent thundering herd.
	// Value between 0.0 (no jitter) and 1.0 (full jitter).
	// Default is 0.1 (10% jitter).
	Jitter float64
}

// DefaultBackoffConfig returns a BackoffConfig with default values.
func DefaultBackoffConfig() *BackoffConfig {
	return &BackoffConfig{
		Strategy:     BackoffExponential,
		BaseInterval: DefaultRetryInterval,
		MaxInterval:  48 * time.Hour,
		Jitter:       0.1,
	}
}

// NextRetry calculates the next retry time based on the configuration.
//
// Exponential schedule with the default 5-minute base: 5m, 10m, 20m, 40m,
// 80m and so on, capped at MaxInterval.
func (c *BackoffConfig) NextRetry(attempts int) time.Time {
	return time.Now().Add(c.Interval(attempts))
}

// Interval calculates the backoff interval for the given attempt.
func (c *BackoffConfig) Interval(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}

	var interval time.Duration
	switch c.Strategy {
	case BackoffLinear:
		interval = c.BaseInterval * time.Duration(attempts)
	case BackoffConstant:
		interval = c.BaseInterval
	default:
		multiplier := math.Pow(2, float64(attempts-1))
		interval = time.Duration(float64(c.BaseInterval) * multiplier)
	}

	if c.MaxInterval > 0 && interval > c.MaxInterval {
		interval = c.MaxInterval
	}

	if c.Jitter > 0 {
		jitter := float64(interval) * c.Jitter * (rand.Float64()*2 - 1)
		interval += time.Duration(jitter)
		if interval < 0 {
			interval = c.BaseInterval
		}
	}

	return interval
}
