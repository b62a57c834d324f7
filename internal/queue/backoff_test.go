package queue

import (
	"testing"
	"time"
)

func TestFixedBackoff(t *testing.T) {
	b := FixedBackoff{Interval: 30 * time.Second}
	for _, attempt := range []int{1, 2, 5, 100} {
		if got := b.Delay(attempt); got != 30*time.Second {
			t.Errorf("Delay(%d) = %v, want 30s", attempt, got)
		}
	}
}

func TestScheduleBackoff(t *testing.T) {
	schedule := []time.Duration{time.Second, 4 * time.Second, 16 * time.Second}
	b := ScheduleBackoff{Schedule: schedule, JitterPct: 0.25}

	tests := []struct {
		name    string
		attempt int
		base    time.Duration
	}{
		{name: "first attempt uses first entry", attempt: 1, base: time.Second},
		{name: "second attempt uses second entry", attempt: 2, base: 4 * time.Second},
		{name: "attempt past schedule holds at last entry", attempt: 10, base: 16 * time.Second},
		{name: "zero attempt clamps to first entry", attempt: 0, base: time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := b.Delay(tt.attempt)
			lo := time.Duration(float64(tt.base) * 0.75)
			hi := time.Duration(float64(tt.base) * 1.25)
			if got < lo || got > hi {
				t.Errorf("Delay(%d) = %v, want within [%v, %v]", tt.attempt, got, lo, hi)
			}
		})
	}
}

func TestScheduleBackoffEmptySchedule(t *testing.T) {
	b := ScheduleBackoff{}
	if got := b.Delay(3); got != time.Minute {
		t.Errorf("empty schedule Delay = %v, want 1m", got)
	}
}

func TestExponentialBackoff(t *testing.T) {
	b := ExponentialBackoff{Base: time.Second, Max: 10 * time.Second}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 1, want: time.Second},
		{attempt: 2, want: 2 * time.Second},
		{attempt: 3, want: 4 * time.Second},
		{attempt: 4, want: 8 * time.Second},
		{attempt: 5, want: 10 * time.Second}, // capped
		{attempt: 0, want: time.Second},      // clamped to first attempt
	}

	for _, tt := range tests {
		if got := b.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}
