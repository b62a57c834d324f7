package recon

import (
	"context"
	"encoding/json"
	"time"

	"github.com/QuangSon1901/ecount-integration-sub001/internal/alert"
	"github.com/QuangSon1901/ecount-integration-sub001/internal/carrier"
	"github.com/QuangSon1901/ecount-integration-sub001/internal/erp"
	"github.com/QuangSon1901/ecount-integration-sub001/internal/logging"
	"github.com/QuangSon1901/ecount-integration-sub001/internal/metrics"
	"github.com/QuangSon1901/ecount-integration-sub001/internal/order"
	"github.com/QuangSon1901/ecount-integration-sub001/internal/runlog"
	"github.com/QuangSon1901/ecount-integration-sub001/internal/tracing"
	"github.com/QuangSon1901/ecount-integration-sub001/internal/webhook"
)

// OrderStore is the slice of the order store the reconciler uses.
type OrderStore interface {
	ListOpen(ctx context.Context) ([]*order.Order, error)
	ApplyStatus(ctx context.Context, id, packageStatus, label string) error
	SetTracking(ctx context.Context, id, trackingNumber string) error
}

// Dispatcher fans out webhook events for status changes.
type Dispatcher interface {
	Dispatch(ctx context.Context, customerID, event, orderID string, data any) (int, error)
}

// StatusEvent is the webhook payload for a label transition.
type StatusEvent struct {
	OrderID        string `json:"orderId"`
	Label          string `json:"label"`
	PreviousLabel  string `json:"previousLabel"`
	PackageStatus  string `json:"packageStatus"`
	Carrier        string `json:"carrier"`
	TrackingNumber string `json:"trackingNumber,omitempty"`
}

// Reconciler periodically compares carrier shipment state against ERP order
// state, derives the canonical label for each open order, and propagates
// changes: order row, ERP update job, customer webhooks, operator alerts.
type Reconciler struct {
	orders      OrderStore
	carriers    *carrier.Registry
	jobs        erp.JobEnqueuer
	dispatcher  Dispatcher
	alerts      alert.Notifier
	runs        runlog.Recorder
	logger      *logging.Logger
	interval    time.Duration
	maxAttempts int
}

func NewReconciler(
	orders OrderStore,
	carriers *carrier.Registry,
	jobs erp.JobEnqueuer,
	dispatcher Dispatcher,
	alerts alert.Notifier,
	runs runlog.Recorder,
	logger *logging.Logger,
	interval time.Duration,
	maxAttempts int,
) *Reconciler {
	return &Reconciler{
		orders:      orders,
		carriers:    carriers,
		jobs:        jobs,
		dispatcher:  dispatcher,
		alerts:      alerts,
		runs:        runs,
		logger:      logger,
		interval:    interval,
		maxAttempts: maxAttempts,
	}
}

// Run executes reconciliation passes on the configured interval until ctx is
// done.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Plain().WithField("interval", r.interval.String()).Info("reconciliation producer started")
	for {
		select {
		case <-ctx.Done():
			r.logger.Plain().Info("reconciliation producer stopped")
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce performs one reconciliation pass and records the outcome. A single
// order failing never aborts the pass.
func (r *Reconciler) RunOnce(ctx context.Context) {
	ctx, span := tracing.StartSpan(ctx, "recon.pass")
	defer span.End()

	started := time.Now()
	run := runlog.Run{Producer: "reconcile", Outcome: "ok", StartedAt: started}

	orders, err := r.orders.ListOpen(ctx)
	if err != nil {
		run.Outcome = "error"
		run.Detail = err.Error()
		tracing.SetSpanError(ctx, err)
		r.logger.WithContext(ctx).WithError(err).Error("failed to list open orders")
	}

	for _, o := range orders {
		run.Scanned++
		changed, oerr := r.reconcileOrder(ctx, o)
		if oerr != nil {
			r.logger.WithContext(ctx).WithOrder(o.ID).WithError(oerr).Warn("order reconciliation failed")
			continue
		}
		if changed {
			run.Changed++
		}
	}

	run.EndedAt = time.Now()
	metrics.RecordProducerRun("reconcile", run.Outcome)
	if rerr := r.runs.Record(ctx, run); rerr != nil {
		r.logger.WithContext(ctx).WithError(rerr).Warn("failed to record producer run")
	}
}

// reconcileOrder fetches carrier state for one order and applies any label
// transition. Returns true when the label changed.
func (r *Reconciler) reconcileOrder(ctx context.Context, o *order.Order) (bool, error) {
	cli, err := r.carriers.Lookup(o.Carrier)
	if err != nil {
		return false, err
	}

	var info *carrier.OrderInfo
	if o.TrackingNumber != "" {
		info, err = cli.TrackOrder(ctx, o.TrackingNumber)
	} else {
		info, err = cli.GetOrderInfo(ctx, o.ID)
	}
	if err != nil {
		return false, err
	}

	// A tracking number discovered at the carrier flows back to the order
	// and onwards to the ERP.
	if o.TrackingNumber == "" && info.TrackingNumber != "" {
		if serr := r.orders.SetTracking(ctx, o.ID, info.TrackingNumber); serr != nil {
			return false, serr
		}
		o.TrackingNumber = info.TrackingNumber
		payload := erp.UpdateTrackingPayload{
			OrderID:        o.ID,
			ErpOrderCode:   o.ErpOrderCode,
			TrackingNumber: info.TrackingNumber,
			EcountLink:     o.EcountLink,
		}
		if _, eerr := r.jobs.Enqueue(ctx, erp.JobUpdateTracking, payload, 0, r.maxAttempts); eerr != nil {
			return false, eerr
		}
	}

	label := Resolve(info.PackageStatus, o.ErpStatus)
	if label == LabelUnknown {
		// An unrecognized combination must not clobber the last good label.
		return false, nil
	}
	if string(label) == o.Label && info.PackageStatus == o.PackageStatus {
		return false, nil
	}

	if err := r.orders.ApplyStatus(ctx, o.ID, info.PackageStatus, string(label)); err != nil {
		return false, err
	}
	metrics.RecordTransition(string(label))

	if string(label) != o.Label {
		r.propagate(ctx, o, info, label)
	}
	return true, nil
}

// propagate pushes a label transition to the ERP, customer webhooks, and
// operators. Propagation failures are logged, not returned: the order row is
// already updated and the next pass must not re-apply the same transition.
func (r *Reconciler) propagate(ctx context.Context, o *order.Order, info *carrier.OrderInfo, label Label) {
	if o.ErpOrderCode != "" {
		payload := erp.UpdateStatusPayload{
			OrderID:        o.ID,
			ErpOrderCode:   o.ErpOrderCode,
			TrackingNumber: o.TrackingNumber,
			Status:         string(label),
			EcountLink:     o.EcountLink,
		}
		if _, err := r.jobs.Enqueue(ctx, erp.JobUpdateStatus, payload, 0, r.maxAttempts); err != nil {
			r.logger.WithContext(ctx).WithOrder(o.ID).WithError(err).Error("failed to enqueue erp status update")
		}
	}

	event := StatusEvent{
		OrderID:        o.ID,
		Label:          string(label),
		PreviousLabel:  o.Label,
		PackageStatus:  info.PackageStatus,
		Carrier:        o.Carrier,
		TrackingNumber: o.TrackingNumber,
	}
	if _, err := r.dispatcher.Dispatch(ctx, o.CustomerID, webhook.EventOrderStatusChanged, o.ID, event); err != nil {
		r.logger.WithContext(ctx).WithOrder(o.ID).WithError(err).Error("failed to dispatch webhooks")
	}

	if label.NeedsAlert() {
		note := alert.Notification{
			OrderID: o.ID,
			Label:   string(label),
			Carrier: o.Carrier,
			Detail:  detailJSON(event),
		}
		if err := r.alerts.Notify(ctx, note); err != nil {
			r.logger.WithContext(ctx).WithOrder(o.ID).WithError(err).Error("failed to send alert")
		}
	}

	r.logger.WithContext(ctx).
		WithOrder(o.ID).
		WithField("label", string(label)).
		WithField("previous", o.Label).
		Info("order status transitioned")
}

func detailJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
