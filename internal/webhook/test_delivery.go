package webhook

import (
	"context"
	"encoding/json"
	"fmt"
)

// TestResult reports a synchronous test delivery.
type TestResult struct {
	StatusCode int    `json:"status_code"`
	LatencyMs  int64  `json:"latency_ms"`
	Error      string `json:"error,omitempty"`
}

// SendTest delivers a test event synchronously so operators can verify an
// endpoint, with a caller-chosen sample payload (nil falls back to a stock
// message). It goes through the same signing and transport path as real
// deliveries but never touches the fail count and is logged with the test
// event type.
func (d *Deliverer) SendTest(ctx context.Context, webhookID string, sample json.RawMessage) (*TestResult, error) {
	reg, err := d.store.Find(ctx, webhookID)
	if err != nil {
		return nil, err
	}

	data := sample
	if len(data) == 0 {
		data, _ = json.Marshal(map[string]any{
			"message":   "test delivery",
			"webhookId": reg.ID,
		})
	}
	statusCode, latency, sendErr := d.send(ctx, reg, EventTest, data)

	log := DeliveryLog{
		WebhookID:  reg.ID,
		Event:      EventTest,
		StatusCode: statusCode,
		LatencyMs:  latency.Milliseconds(),
		Outcome:    OutcomeSuccess,
	}
	res := &TestResult{StatusCode: statusCode, LatencyMs: latency.Milliseconds()}
	if sendErr != nil {
		log.Outcome = OutcomeFailed
		log.Error = sendErr.Error()
		res.Error = sendErr.Error()
	}
	if aerr := d.logs.Append(ctx, log); aerr != nil {
		return res, fmt.Errorf("append delivery log: %w", aerr)
	}
	return res, nil
}
