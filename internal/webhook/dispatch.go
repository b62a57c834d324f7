package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/QuangSon1901/ecount-integration-sub001/internal/logging"
)

// Enqueuer is the slice of the job queue the dispatcher uses.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobType string, payload any, delay time.Duration, maxAttempts int) (string, error)
}

// Lister resolves which registrations should receive an event.
type Lister interface {
	ListActive(ctx context.Context, customerID, event string) ([]*Registration, error)
}

// Dispatcher fans an event out into one delivery job per active registration.
// Delivery itself is asynchronous; Dispatch only enqueues.
type Dispatcher struct {
	store       Lister
	jobs        Enqueuer
	maxAttempts int
	logger      *logging.Logger
}

func NewDispatcher(store Lister, jobs Enqueuer, maxAttempts int, logger *logging.Logger) *Dispatcher {
	return &Dispatcher{store: store, jobs: jobs, maxAttempts: maxAttempts, logger: logger}
}

// Dispatch enqueues a delivery job for every active registration of the
// customer subscribed to the event. Returns the number of jobs enqueued.
func (d *Dispatcher) Dispatch(ctx context.Context, customerID, event, orderID string, data any) (int, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return 0, fmt.Errorf("encode event data: %w", err)
	}

	regs, err := d.store.ListActive(ctx, customerID, event)
	if err != nil {
		return 0, fmt.Errorf("list webhooks: %w", err)
	}

	enqueued := 0
	for _, reg := range regs {
		payload := DeliveryPayload{
			WebhookID: reg.ID,
			Event:     event,
			OrderID:   orderID,
			Payload:   raw,
		}
		if _, err := d.jobs.Enqueue(ctx, JobDelivery, payload, 0, d.maxAttempts); err != nil {
			return enqueued, fmt.Errorf("enqueue delivery for %s: %w", reg.ID, err)
		}
		enqueued++
	}
	if enqueued > 0 {
		d.logger.WithContext(ctx).
			WithOrder(orderID).
			WithField("event", event).
			WithField("deliveries", enqueued).
			Debug("webhook deliveries enqueued")
	}
	return enqueued, nil
}
