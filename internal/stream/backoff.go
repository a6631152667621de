package stream

import (
	"math"
	"time"
)

// Backoff computes reconnect delays: min(Max, Initial*2^attempt) scaled by a
// jitter factor drawn uniformly from [0.5, 1.0].
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
	// Jitter returns a value in [0, 1). Nil means no randomization (factor 1.0).
	Jitter func() float64
}

// Ceiling is the un-jittered delay for attempt.
func (b Backoff) Ceiling(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	ceiling := float64(b.Initial) * math.Pow(2, float64(attempt))
	if ceiling >= float64(b.Max) {
		return b.Max
	}
	return time.Duration(ceiling)
}

// Delay is the jittered delay for attempt.
func (b Backoff) Delay(attempt int) time.Duration {
	r := 1.0
	if b.Jitter != nil {
		r = math.Min(math.Max(b.Jitter(), 0), 1)
	}
	return time.Duration(float64(b.Ceiling(attempt)) * (0.5 + r*0.5))
}
