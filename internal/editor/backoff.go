package editor

import (
	"math"
	"math/rand"
	"time"
)

// ExponentialBackoff implements exponential backoff with jitter for the
// background connect loop
type ExponentialBackoff struct {
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool
	attemptCount int
}

// NewExponentialBackoff creates a new exponential backoff with sensible defaults
func NewExponentialBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		BaseDelay:  5 * time.Second,
		MaxDelay:   30 * time.Second,
		Multiplier: 1.5,
		Jitter:     true,
	}
}

// NextDelay calculates the next delay duration with exponential backoff
func (eb *ExponentialBackoff) NextDelay() time.Duration {
	delay := time.Duration(float64(eb.BaseDelay) * math.Pow(eb.Multiplier, float64(eb.attemptCount)))

	if delay > eb.MaxDelay {
		delay = eb.MaxDelay
	}

	// Add jitter to prevent thundering herd
	if eb.Jitter {
		jitterRange := float64(delay) * 0.1 // ±10% jitter
		jitter := time.Duration((rand.Float64()*2 - 1) * jitterRange)
		delay += jitter
	}

	if delay < eb.BaseDelay {
		delay = eb.BaseDelay
	}

	eb.attemptCount++
	return delay
}
