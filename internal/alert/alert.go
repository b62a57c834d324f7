// Package alert pushes operator notifications for order states that need a
// human (returns, deletions, abnormal shipments).
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/QuangSon1901/ecount-integration-sub001/internal/logging"
)

// Notification is one operator-facing alert.
type Notification struct {
	OrderID   string    `json:"orderId"`
	Label     string    `json:"label"`
	Carrier   string    `json:"carrier"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier delivers notifications. Failures are logged by callers but never
// block reconciliation.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// HTTPNotifier posts notifications as JSON to a configured endpoint, for
// example a chat-webhook relay.
type HTTPNotifier struct {
	url     string
	httpcli *http.Client
}

func NewHTTPNotifier(url string, timeout time.Duration) *HTTPNotifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPNotifier{url: url, httpcli: &http.Client{Timeout: timeout}}
}

func (n *HTTPNotifier) Notify(ctx context.Context, note Notification) error {
	if note.Timestamp.IsZero() {
		note.Timestamp = time.Now().UTC()
	}
	body, err := json.Marshal(note)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build alert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpcli.Do(req)
	if err != nil {
		return fmt.Errorf("alert request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("alert endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// LogNotifier writes notifications to the log. Used when no alert endpoint is
// configured.
type LogNotifier struct {
	logger *logging.Logger
}

func NewLogNotifier(logger *logging.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, note Notification) error {
	n.logger.WithContext(ctx).
		WithOrder(note.OrderID).
		WithField("label", note.Label).
		WithField("carrier", note.Carrier).
		Warn("order needs attention")
	return nil
}

// NewFromConfig picks the HTTP notifier when a URL is configured and falls
// back to logging otherwise.
func NewFromConfig(url string, timeout time.Duration, logger *logging.Logger) Notifier {
	if url == "" {
		return NewLogNotifier(logger)
	}
	return NewHTTPNotifier(url, timeout)
}
