package queue

import (
	"math"
	"math/rand"
	"time"
)

// BackoffPolicy computes the retry delay after a failed attempt.
// attempt is 1-based: the delay after the first failure is Delay(1).
type BackoffPolicy interface {
	Delay(attempt int) time.Duration
}

// FixedBackoff retries on a constant delay.
type FixedBackoff struct {
	Interval time.Duration
}

func (b FixedBackoff) Delay(int) time.Duration { return b.Interval }

// ScheduleBackoff walks a configured schedule of delays, holding at the last
// entry, with +/- JitterPct randomization to spread thundering retries.
type ScheduleBackoff struct {
	Schedule  []time.Duration
	JitterPct float64
}

func (b ScheduleBackoff) Delay(attempt int) time.Duration {
	if len(b.Schedule) == 0 {
		return time.Minute
	}
	idx := attempt - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(b.Schedule) {
		idx = len(b.Schedule) - 1
	}
	base := b.Schedule[idx]

	j := 1 + (rand.Float64()*2-1)*b.JitterPct
	if j < 0.1 {
		j = 0.1
	}
	return time.Duration(float64(base) * j)
}

// ExponentialBackoff doubles a base delay per attempt up to a cap.
type ExponentialBackoff struct {
	Base time.Duration
	Max  time.Duration
}

func (b ExponentialBackoff) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	mul := math.Pow(2, float64(attempt-1))
	d := time.Duration(float64(b.Base) * mul)
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}
	return d
}
