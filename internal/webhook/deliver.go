package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/QuangSon1901/ecount-integration-sub001/internal/config"
	"github.com/QuangSon1901/ecount-integration-sub001/internal/logging"
	"github.com/QuangSon1901/ecount-integration-sub001/internal/metrics"
	"github.com/QuangSon1901/ecount-integration-sub001/internal/queue"
	"github.com/QuangSon1901/ecount-integration-sub001/internal/tracing"
)

// JobDelivery is the job type for asynchronous webhook deliveries.
const JobDelivery = "webhook_delivery"

// DeliveryPayload is the queue payload for one delivery.
type DeliveryPayload struct {
	WebhookID string          `json:"webhookId"`
	Event     string          `json:"event"`
	OrderID   string          `json:"orderId,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

// Envelope is the wire format posted to endpoints.
type Envelope struct {
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// Deliverer executes webhook_delivery jobs: sign, POST, log the attempt, and
// keep the endpoint's consecutive-failure count.
type Deliverer struct {
	store   Store
	logs    LogStore
	cfg     config.Webhook
	httpcli *http.Client
	logger  *logging.Logger
}

func NewDeliverer(store Store, logs LogStore, cfg config.Webhook, logger *logging.Logger) *Deliverer {
	return &Deliverer{
		store:   store,
		logs:    logs,
		cfg:     cfg,
		httpcli: &http.Client{Timeout: cfg.RequestTimeout},
		logger:  logger,
	}
}

// Register wires the deliverer into the job registry.
func (d *Deliverer) Register(reg *queue.Registry) error {
	return reg.Register(JobDelivery, queue.HandlerFunc(d.ProcessJob))
}

// ProcessJob delivers one webhook. A delivery failure increments the
// endpoint's fail count exactly once per execution and returns an error so
// the queue retries under backoff; success resets the count to zero.
func (d *Deliverer) ProcessJob(ctx context.Context, job *queue.Job) (queue.Result, error) {
	var p DeliveryPayload
	if err := job.UnmarshalPayload(&p); err != nil {
		return queue.Result{Skipped: true, Detail: "malformed payload"}, nil
	}

	reg, err := d.store.Find(ctx, p.WebhookID)
	if errors.Is(err, ErrNotFound) {
		return queue.Result{Skipped: true, Detail: "webhook no longer exists"}, nil
	}
	if err != nil {
		return queue.Result{}, err
	}
	if !reg.Active {
		// Deactivated between enqueue and execution.
		return queue.Result{Skipped: true, Detail: "webhook inactive"}, nil
	}

	statusCode, latency, sendErr := d.send(ctx, reg, p.Event, p.Payload)

	log := DeliveryLog{
		WebhookID:  reg.ID,
		Event:      p.Event,
		OrderID:    p.OrderID,
		StatusCode: statusCode,
		LatencyMs:  latency.Milliseconds(),
	}

	if sendErr == nil {
		log.Outcome = OutcomeSuccess
		if aerr := d.logs.Append(ctx, log); aerr != nil {
			d.logger.WithContext(ctx).WithWebhook(reg.ID).WithError(aerr).Warn("failed to append delivery log")
		}
		if rerr := d.store.ResetFailCount(ctx, reg.ID); rerr != nil {
			return queue.Result{}, fmt.Errorf("reset fail count: %w", rerr)
		}
		metrics.RecordWebhookDelivery("success")
		return queue.Result{}, nil
	}

	log.Outcome = OutcomeFailed
	log.Error = sendErr.Error()
	if aerr := d.logs.Append(ctx, log); aerr != nil {
		d.logger.WithContext(ctx).WithWebhook(reg.ID).WithError(aerr).Warn("failed to append delivery log")
	}
	metrics.RecordWebhookDelivery("failed")

	count, ierr := d.store.IncrementFailCount(ctx, reg.ID)
	if ierr != nil && !errors.Is(ierr, ErrNotFound) {
		d.logger.WithContext(ctx).WithWebhook(reg.ID).WithError(ierr).Error("failed to increment fail count")
	}
	if ierr == nil && count >= d.cfg.FailThreshold {
		if derr := d.store.Deactivate(ctx, reg.ID); derr != nil {
			d.logger.WithContext(ctx).WithWebhook(reg.ID).WithError(derr).Error("failed to deactivate webhook")
		} else {
			metrics.RecordWebhookDeactivation()
			d.logger.WithContext(ctx).WithWebhook(reg.ID).
				WithField("fail_count", count).
				Warn("webhook deactivated after repeated failures")
		}
	}
	return queue.Result{}, sendErr
}

// send posts one signed envelope. Any non-2xx status is a failure.
func (d *Deliverer) send(ctx context.Context, reg *Registration, event string, data json.RawMessage) (int, time.Duration, error) {
	ctx, span := tracing.StartSpan(ctx, "webhook.send")
	defer span.End()

	body, err := json.Marshal(Envelope{
		Event:     event,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return 0, 0, fmt.Errorf("encode envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reg.URL, bytes.NewReader(body))
	if err != nil {
		return 0, 0, fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(d.cfg.EventHeader, event)
	req.Header.Set(d.cfg.SignatureHeader, Sign(reg.SecretHash, body))
	if traceID := tracing.GetTraceID(ctx); traceID != "" {
		req.Header.Set("X-Trace-Id", traceID)
	}

	start := time.Now()
	resp, err := d.httpcli.Do(req)
	latency := time.Since(start)
	if err != nil {
		tracing.SetSpanError(ctx, err)
		return 0, latency, fmt.Errorf("webhook request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := fmt.Errorf("webhook endpoint returned status %d", resp.StatusCode)
		tracing.SetSpanError(ctx, err)
		return resp.StatusCode, latency, err
	}
	return resp.StatusCode, latency, nil
}
