package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func newTestWorker(store Store, h Handler, cfg WorkerConfig) *Worker {
	if cfg.Type == "" {
		cfg.Type = "test_job"
	}
	if cfg.Backoff == nil {
		cfg.Backoff = FixedBackoff{Interval: 0}
	}
	cfg.Interval = time.Hour // ticks are driven manually in tests
	return NewWorker(store, h, cfg)
}

func TestWorkerCompletesJob(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	var calls int32
	h := HandlerFunc(func(ctx context.Context, job *Job) (Result, error) {
		atomic.AddInt32(&calls, 1)
		return Result{}, nil
	})
	w := newTestWorker(store, h, WorkerConfig{Concurrency: 1})

	id, _ := store.Enqueue(ctx, "test_job", map[string]string{"k": "v"}, 0, 3)
	w.Tick(ctx)

	if calls != 1 {
		t.Errorf("handler calls = %d, want 1", calls)
	}
	got, _ := store.Get(id)
	if got.Status != StatusCompleted {
		t.Errorf("status = %s, want completed", got.Status)
	}
	if got.CompletedAt == nil {
		t.Error("completed_at not set")
	}
}

func TestWorkerRetriesThenSucceeds(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	var calls int32
	h := HandlerFunc(func(ctx context.Context, job *Job) (Result, error) {
		n := atomic.AddInt32(&calls, 1)
		if n <= 2 {
			return Result{}, errors.New("transient failure")
		}
		return Result{}, nil
	})
	w := newTestWorker(store, h, WorkerConfig{Concurrency: 1})

	id, _ := store.Enqueue(ctx, "test_job", nil, 0, 3)
	for i := 0; i < 3; i++ {
		w.Tick(ctx)
	}

	if calls != 3 {
		t.Errorf("handler calls = %d, want 3", calls)
	}
	got, _ := store.Get(id)
	if got.Status != StatusCompleted {
		t.Errorf("status = %s, want completed", got.Status)
	}
	if got.Attempts != 2 {
		t.Errorf("attempts = %d, want 2 (success is not an attempt)", got.Attempts)
	}
}

func TestWorkerExhaustsAttempts(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	var hookCalls int32
	h := HandlerFunc(func(ctx context.Context, job *Job) (Result, error) {
		return Result{}, errors.New("permanent outage")
	})
	w := newTestWorker(store, h, WorkerConfig{
		Concurrency: 1,
		OnMaxAttempts: func(ctx context.Context, job *Job, jobErr error) {
			atomic.AddInt32(&hookCalls, 1)
		},
	})

	id, _ := store.Enqueue(ctx, "test_job", nil, 0, 3)
	for i := 0; i < 5; i++ { // extra ticks must be no-ops once terminal
		w.Tick(ctx)
	}

	got, _ := store.Get(id)
	if got.Status != StatusFailed {
		t.Errorf("status = %s, want failed", got.Status)
	}
	if got.Attempts != got.MaxAttempts {
		t.Errorf("attempts = %d, want max_attempts %d", got.Attempts, got.MaxAttempts)
	}
	if got.Attempts > got.MaxAttempts {
		t.Errorf("attempts %d exceeded max_attempts %d", got.Attempts, got.MaxAttempts)
	}
	if hookCalls != 1 {
		t.Errorf("OnMaxAttempts invoked %d times, want exactly 1", hookCalls)
	}
	if got.LastError != "permanent outage" {
		t.Errorf("last_error = %q", got.LastError)
	}
}

func TestWorkerSkippedResultNotRetried(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	var calls int32
	h := HandlerFunc(func(ctx context.Context, job *Job) (Result, error) {
		atomic.AddInt32(&calls, 1)
		return Result{Skipped: true, Detail: "target deleted"}, nil
	})
	w := newTestWorker(store, h, WorkerConfig{Concurrency: 1})

	id, _ := store.Enqueue(ctx, "test_job", nil, 0, 3)
	w.Tick(ctx)
	w.Tick(ctx)

	if calls != 1 {
		t.Errorf("handler calls = %d, want 1 (skipped jobs are not retried)", calls)
	}
	got, _ := store.Get(id)
	if got.Status != StatusCompleted {
		t.Errorf("status = %s, want completed", got.Status)
	}
	if got.Attempts != 0 {
		t.Errorf("attempts = %d, want 0", got.Attempts)
	}
}

func TestWorkerPanicIsolation(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	h := HandlerFunc(func(ctx context.Context, job *Job) (Result, error) {
		var p struct {
			Explode bool `json:"explode"`
		}
		if err := job.UnmarshalPayload(&p); err != nil {
			return Result{}, err
		}
		if p.Explode {
			panic("corrupt payload")
		}
		return Result{}, nil
	})
	w := newTestWorker(store, h, WorkerConfig{Concurrency: 2})

	bad, _ := store.Enqueue(ctx, "test_job", map[string]bool{"explode": true}, 0, 1)
	good, _ := store.Enqueue(ctx, "test_job", map[string]bool{"explode": false}, 0, 1)

	w.Tick(ctx)

	gotBad, _ := store.Get(bad)
	if gotBad.Status != StatusFailed {
		t.Errorf("panicking job status = %s, want failed", gotBad.Status)
	}
	gotGood, _ := store.Get(good)
	if gotGood.Status != StatusCompleted {
		t.Errorf("sibling job status = %s, want completed (isolation)", gotGood.Status)
	}
}

func TestWorkerHookPanicContained(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	h := HandlerFunc(func(ctx context.Context, job *Job) (Result, error) {
		return Result{}, errors.New("nope")
	})
	w := newTestWorker(store, h, WorkerConfig{
		Concurrency: 1,
		OnMaxAttempts: func(ctx context.Context, job *Job, jobErr error) {
			panic("alerting backend down")
		},
	})

	id, _ := store.Enqueue(ctx, "test_job", nil, 0, 1)
	w.Tick(ctx) // must not panic out

	got, _ := store.Get(id)
	if got.Status != StatusFailed {
		t.Errorf("status = %s, want failed", got.Status)
	}
}

func TestWorkerConcurrencyBound(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	var inFlight, peak int32
	h := HandlerFunc(func(ctx context.Context, job *Job) (Result, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			old := atomic.LoadInt32(&peak)
			if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return Result{}, nil
	})
	w := newTestWorker(store, h, WorkerConfig{Concurrency: 3})

	for i := 0; i < 10; i++ {
		if _, err := store.Enqueue(ctx, "test_job", nil, 0, 1); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}
	for i := 0; i < 4; i++ {
		w.Tick(ctx)
	}

	if peak > 3 {
		t.Errorf("peak in-flight = %d, want <= concurrency 3", peak)
	}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	h := HandlerFunc(func(ctx context.Context, job *Job) (Result, error) { return Result{}, nil })

	if err := reg.Register("b_type", h); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := reg.Register("a_type", h); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := reg.Register("a_type", h); err == nil {
		t.Error("duplicate Register did not error")
	}

	if _, ok := reg.Lookup("a_type"); !ok {
		t.Error("Lookup(a_type) not found")
	}
	if _, ok := reg.Lookup("missing"); ok {
		t.Error("Lookup(missing) unexpectedly found")
	}

	types := reg.Types()
	if len(types) != 2 || types[0] != "a_type" || types[1] != "b_type" {
		t.Errorf("Types() = %v, want sorted [a_type b_type]", types)
	}
}

func TestClassifyReason(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil error", err: nil, want: "other"},
		{name: "timeout", err: errors.New("context deadline exceeded (Client.Timeout)"), want: "timeout"},
		{name: "refused", err: errors.New("dial tcp: connection refused"), want: "connection_refused"},
		{name: "dns", err: errors.New("lookup endpoint: no such host"), want: "dns_error"},
		{name: "5xx", err: errors.New("endpoint returned status 503"), want: "http_5xx"},
		{name: "429", err: errors.New("endpoint returned status 429"), want: "http_429"},
		{name: "4xx", err: errors.New("endpoint returned status 404"), want: "http_4xx"},
		{name: "session", err: errors.New("erp session expired"), want: "session_expired"},
		{name: "panic", err: errors.New("handler panic: nil deref"), want: "panic"},
		{name: "anything else", err: errors.New("broken pipe"), want: "network"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyReason(tt.err); got != tt.want {
				t.Errorf("ClassifyReason(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}
