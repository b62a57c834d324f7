// Package webhook delivers signed event notifications to customer endpoints.
// Each registration holds a hashed secret used as the HMAC signing key; the
// plaintext secret is never stored. Endpoints that keep failing are
// deactivated after a threshold of consecutive failures.
package webhook

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a registration does not exist.
var ErrNotFound = errors.New("webhook not found")

// Events emitted by the reconciliation producer.
const (
	EventOrderStatusChanged = "order.status_changed"
	EventTest               = "webhook.test"
)

// Registration is one customer webhook endpoint.
type Registration struct {
	ID         string    `json:"id"`
	CustomerID string    `json:"customer_id"`
	URL        string    `json:"url"`
	SecretHash string    `json:"-"` // sha256 hex of the customer secret, used as signing key
	Events     []string  `json:"events"`
	Active     bool      `json:"active"`
	FailCount  int       `json:"fail_count"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Subscribed reports whether the registration wants an event.
func (r *Registration) Subscribed(event string) bool {
	if len(r.Events) == 0 {
		return true
	}
	for _, e := range r.Events {
		if e == event {
			return true
		}
	}
	return false
}

// DeliveryLog is one delivery attempt against an endpoint.
type DeliveryLog struct {
	ID         string    `json:"id"`
	WebhookID  string    `json:"webhook_id"`
	Event      string    `json:"event"`
	OrderID    string    `json:"order_id,omitempty"`
	Outcome    string    `json:"outcome"` // success or failed
	StatusCode int       `json:"status_code,omitempty"`
	Error      string    `json:"error,omitempty"`
	LatencyMs  int64     `json:"latency_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
)
