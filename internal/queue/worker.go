package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/QuangSon1901/ecount-integration-sub001/internal/logging"
	"github.com/QuangSon1901/ecount-integration-sub001/internal/metrics"
	"github.com/QuangSon1901/ecount-integration-sub001/internal/tracing"
)

// MaxAttemptsHook runs after a job's final failed attempt, for alerting. It
// must not escalate: panics and long hangs are the hook's own problem and are
// contained by the worker.
type MaxAttemptsHook func(ctx context.Context, job *Job, jobErr error)

// WorkerConfig parameterizes one polling worker. Each worker owns exactly one
// job type; concurrency bounds how many handlers run per tick.
type WorkerConfig struct {
	Type          string
	Interval      time.Duration
	Concurrency   int
	Backoff       BackoffPolicy
	OnMaxAttempts MaxAttemptsHook
}

// Worker is the generic polling executor: it claims due jobs of its type,
// dispatches them to the handler, and writes back success or failure with
// retry bookkeeping.
type Worker struct {
	cfg     WorkerConfig
	store   Store
	handler Handler
	id      string
	log     *logging.Logger
}

func NewWorker(store Store, handler Handler, cfg WorkerConfig) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.Backoff == nil {
		cfg.Backoff = FixedBackoff{Interval: time.Minute}
	}
	return &Worker{
		cfg:     cfg,
		store:   store,
		handler: handler,
		id:      cfg.Type + "-" + uuid.NewString()[:8],
		log:     logging.New("queue-worker"),
	}
}

// ID returns the worker's claim identity.
func (w *Worker) ID() string { return w.id }

// Run polls until the context is cancelled.
func (w *Worker) Run(ctx context.Context) {
	w.log.Plain().WithWorker(w.id).WithField("interval", w.cfg.Interval.String()).Info("worker started")

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Plain().WithWorker(w.id).Info("worker stopped")
			return
		case <-ticker.C:
			w.Tick(ctx)
		}
	}
}

// Tick claims up to Concurrency due jobs and runs them to completion. Each
// job executes in its own goroutine; one job's failure or panic never affects
// its siblings.
func (w *Worker) Tick(ctx context.Context) {
	var wg sync.WaitGroup
	claimed := 0
	for claimed < w.cfg.Concurrency {
		job, err := w.store.ClaimNext(ctx, w.cfg.Type, w.id)
		if err != nil {
			w.log.WithContext(ctx).WithWorker(w.id).WithError(err).Error("claim failed")
			break
		}
		if job == nil {
			break
		}
		claimed++

		wg.Add(1)
		go func(job *Job) {
			defer wg.Done()
			w.execute(ctx, job)
		}(job)
	}
	wg.Wait()
}

func (w *Worker) execute(ctx context.Context, job *Job) {
	ctx, span := tracing.StartSpan(ctx, "queue.execute",
		attribute.String("job_id", job.ID),
		attribute.String("job_type", job.Type),
		attribute.Int("attempts", job.Attempts),
	)
	defer span.End()

	start := time.Now()
	res, err := w.runHandler(ctx, job)
	elapsed := time.Since(start)

	if err == nil {
		outcome := "completed"
		if res.Skipped {
			outcome = "skipped"
			w.log.WithContext(ctx).WithJob(job.ID, job.Type).WithField("detail", res.Detail).Info("job skipped")
		}
		if mErr := w.store.MarkCompleted(ctx, job.ID); mErr != nil {
			tracing.SetSpanError(ctx, mErr)
			w.log.WithContext(ctx).WithJob(job.ID, job.Type).WithError(mErr).Error("mark completed failed")
		}
		metrics.RecordJob(job.Type, outcome, elapsed)
		span.SetAttributes(attribute.String("job.outcome", outcome))
		return
	}

	tracing.SetSpanError(ctx, err)
	reason := ClassifyReason(err)
	span.SetAttributes(attribute.String("failure_reason", reason))

	newAttempts := job.Attempts + 1
	if newAttempts < job.MaxAttempts {
		delay := w.cfg.Backoff.Delay(newAttempts)
		if mErr := w.store.MarkFailed(ctx, job.ID, err.Error(), delay); mErr != nil {
			tracing.SetSpanError(ctx, mErr)
			w.log.WithContext(ctx).WithJob(job.ID, job.Type).WithError(mErr).Error("mark failed failed")
		}
		metrics.RecordJob(job.Type, "retried", elapsed)
		metrics.RecordRetry(job.Type, reason)
		w.log.WithContext(ctx).WithJob(job.ID, job.Type).WithError(err).WithFields(map[string]any{
			"attempt": newAttempts,
			"delay":   delay.String(),
			"reason":  reason,
		}).Warn("job retry scheduled")
		return
	}

	if mErr := w.store.MarkTerminallyFailed(ctx, job.ID, err.Error()); mErr != nil {
		tracing.SetSpanError(ctx, mErr)
		w.log.WithContext(ctx).WithJob(job.ID, job.Type).WithError(mErr).Error("mark terminally failed failed")
	}
	metrics.RecordJob(job.Type, "failed", elapsed)
	metrics.RecordExhausted(job.Type)
	w.log.WithContext(ctx).WithJob(job.ID, job.Type).WithError(err).WithField("attempts", newAttempts).Error("job attempts exhausted")

	w.invokeMaxAttemptsHook(ctx, job, err)
}

// runHandler contains handler panics so a bad job cannot take the worker down.
func (w *Worker) runHandler(ctx context.Context, job *Job) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return w.handler.ProcessJob(ctx, job)
}

// invokeMaxAttemptsHook runs the dead-letter hook. A hook failure is swallowed
// and logged, never escalated back into the scheduling loop.
func (w *Worker) invokeMaxAttemptsHook(ctx context.Context, job *Job, jobErr error) {
	if w.cfg.OnMaxAttempts == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			w.log.WithContext(ctx).WithJob(job.ID, job.Type).WithField("panic", fmt.Sprint(r)).Error("max attempts hook panicked")
		}
	}()
	w.cfg.OnMaxAttempts(ctx, job, jobErr)
}

// Pool runs one worker per job type plus the stuck-job sweep.
type Pool struct {
	store         Store
	workers       []*Worker
	sweepInterval time.Duration
	stuckTimeout  time.Duration
	log           *logging.Logger
}

func NewPool(store Store, sweepInterval, stuckTimeout time.Duration) *Pool {
	return &Pool{
		store:         store,
		sweepInterval: sweepInterval,
		stuckTimeout:  stuckTimeout,
		log:           logging.New("queue-pool"),
	}
}

// AddWorker registers a worker built from the registry's handler for cfg.Type.
func (p *Pool) AddWorker(reg *Registry, cfg WorkerConfig) error {
	h, ok := reg.Lookup(cfg.Type)
	if !ok {
		return fmt.Errorf("no handler registered for job type %q", cfg.Type)
	}
	p.workers = append(p.workers, NewWorker(p.store, h, cfg))
	return nil
}

// Run starts every worker and the sweep loop, and blocks until the context is
// cancelled and all workers have drained their current tick.
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range p.workers {
		wg.Add(1)
		go func(w *Worker) {
			defer wg.Done()
			w.Run(ctx)
		}(w)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.runSweep(ctx)
	}()

	wg.Wait()
}

// runSweep reclaims jobs stuck in processing past the timeout (crash
// recovery). The sweep is not an attempt: attempts are left untouched.
func (p *Pool) runSweep(ctx context.Context) {
	if p.sweepInterval <= 0 {
		return
	}
	ticker := time.NewTicker(p.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.store.ReclaimStuck(ctx, p.stuckTimeout)
			if err != nil {
				p.log.WithContext(ctx).WithError(err).Error("stuck job sweep failed")
				continue
			}
			if n > 0 {
				metrics.RecordReclaimed(n)
				p.log.WithContext(ctx).WithField("count", n).Warn("reclaimed stuck jobs")
			}
		}
	}
}
