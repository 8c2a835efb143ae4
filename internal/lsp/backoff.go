package lsp

import (
	"math"
	"time"
)

// Backoff is the crash-restart delay policy. The default is a fixed
// delay; setting Multiplier above 1 makes it exponential, capped at Max.
// This debounce is what keeps a flapping emulator or a crash-looping
// analysis process from triggering a restart storm.
type Backoff struct {
	// Initial is the delay after the first crash.
	// Default: 5 seconds.
	Initial time.Duration

	// Max caps the delay when Multiplier is in effect.
	// Default: 60 seconds.
	Max time.Duration

	// Multiplier grows the delay per consecutive crash. Values at or
	// below 1 keep the delay fixed at Initial.
	// Default: 1.0 (fixed delay).
	Multiplier float64

	// ResetWindow is how long the process must run before the
	// consecutive-crash count resets.
	// Default: 2 minutes.
	ResetWindow time.Duration
}

// DefaultBackoff returns the default crash-restart policy.
func DefaultBackoff() Backoff {
	return Backoff{
		Initial:     5 * time.Second,
		Max:         60 * time.Second,
		Multiplier:  1.0,
		ResetWindow: 2 * time.Minute,
	}
}

// Delay returns the wait before restart attempt n (1-based).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt <= 1 || b.Multiplier <= 1 {
		return b.Initial
	}

	delay := float64(b.Initial) * math.Pow(b.Multiplier, float64(attempt-1))
	if delay > float64(b.Max) {
		return b.Max
	}
	return time.Duration(delay)
}
