package queue

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemStoreClaimAtomicity(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	if _, err := store.Enqueue(ctx, "test_job", map[string]any{"n": 1}, 0, 3); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	const claimants = 20
	var wg sync.WaitGroup
	results := make([]*Job, claimants)
	for i := 0; i < claimants; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			job, err := store.ClaimNext(ctx, "test_job", "worker")
			if err != nil {
				t.Errorf("ClaimNext: %v", err)
				return
			}
			results[i] = job
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, j := range results {
		if j != nil {
			winners++
		}
	}
	if winners != 1 {
		t.Errorf("concurrent claims on one pending job: %d winners, want exactly 1", winners)
	}
}

func TestMemStoreClaimOrderIsFIFO(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	clock := base
	store.SetClock(func() time.Time { return clock })

	first, _ := store.Enqueue(ctx, "test_job", nil, 0, 1)
	clock = clock.Add(time.Second)
	second, _ := store.Enqueue(ctx, "test_job", nil, 0, 1)
	clock = clock.Add(time.Second)

	job, err := store.ClaimNext(ctx, "test_job", "w1")
	if err != nil || job == nil {
		t.Fatalf("ClaimNext: job=%v err=%v", job, err)
	}
	if job.ID != first {
		t.Errorf("claimed %s first, want oldest job %s", job.ID, first)
	}

	job, _ = store.ClaimNext(ctx, "test_job", "w1")
	if job == nil || job.ID != second {
		t.Errorf("second claim = %v, want %s", job, second)
	}
}

func TestMemStoreDelayedJobNotEligible(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	clock := base
	store.SetClock(func() time.Time { return clock })

	if _, err := store.Enqueue(ctx, "test_job", nil, time.Minute, 1); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	job, err := store.ClaimNext(ctx, "test_job", "w1")
	if err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	if job != nil {
		t.Error("claimed a job before its scheduled_at")
	}

	clock = base.Add(2 * time.Minute)
	job, _ = store.ClaimNext(ctx, "test_job", "w1")
	if job == nil {
		t.Error("job not claimable after its delay elapsed")
	}
}

func TestMemStoreReclaimStuck(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	clock := base
	store.SetClock(func() time.Time { return clock })

	id, _ := store.Enqueue(ctx, "test_job", nil, 0, 3)
	job, _ := store.ClaimNext(ctx, "test_job", "crashed-worker")
	if job == nil {
		t.Fatal("expected claimable job")
	}

	// Too fresh: nothing to reclaim.
	n, err := store.ReclaimStuck(ctx, 10*time.Minute)
	if err != nil || n != 0 {
		t.Errorf("ReclaimStuck fresh = (%d, %v), want (0, nil)", n, err)
	}

	clock = base.Add(30 * time.Minute)
	n, err = store.ReclaimStuck(ctx, 10*time.Minute)
	if err != nil {
		t.Fatalf("ReclaimStuck: %v", err)
	}
	if n != 1 {
		t.Errorf("ReclaimStuck = %d, want 1", n)
	}

	got, _ := store.Get(id)
	if got.Status != StatusPending {
		t.Errorf("status after sweep = %s, want pending", got.Status)
	}
	if got.Attempts != 0 {
		t.Errorf("attempts after sweep = %d, want 0 (sweep is not an attempt)", got.Attempts)
	}
	if got.LockedAt != nil || got.LockedBy != nil {
		t.Error("lock fields not cleared by sweep")
	}

	// Claimable again after reclaim.
	job, _ = store.ClaimNext(ctx, "test_job", "w2")
	if job == nil || job.ID != id {
		t.Errorf("reclaimed job not claimable: %v", job)
	}
}

func TestMemStoreMarkFailedIncrementsAttempts(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	id, _ := store.Enqueue(ctx, "test_job", nil, 0, 3)
	if _, err := store.ClaimNext(ctx, "test_job", "w1"); err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}

	if err := store.MarkFailed(ctx, id, "boom", 0); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	got, _ := store.Get(id)
	if got.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", got.Attempts)
	}
	if got.Status != StatusPending {
		t.Errorf("status = %s, want pending", got.Status)
	}
	if got.LastError != "boom" {
		t.Errorf("last_error = %q, want %q", got.LastError, "boom")
	}

	if _, err := store.ClaimNext(ctx, "test_job", "w1"); err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	if err := store.MarkTerminallyFailed(ctx, id, "boom again"); err != nil {
		t.Fatalf("MarkTerminallyFailed: %v", err)
	}
	got, _ = store.Get(id)
	if got.Status != StatusFailed {
		t.Errorf("status = %s, want failed", got.Status)
	}
	if got.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", got.Attempts)
	}
	if got.CompletedAt == nil {
		t.Error("completed_at not set on terminal failure")
	}
}
