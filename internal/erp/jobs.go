package erp

import (
	"context"
	"errors"
	"fmt"

	"github.com/QuangSon1901/ecount-integration-sub001/internal/logging"
	"github.com/QuangSon1901/ecount-integration-sub001/internal/order"
	"github.com/QuangSon1901/ecount-integration-sub001/internal/queue"
)

// Job types handled by the ERP workers.
const (
	JobUpdateTracking = "update_tracking_ecount"
	JobUpdateStatus   = "update_status_ecount"
	JobLookupDocNo    = "lookup_docno"
)

// UpdateTrackingPayload asks the ERP worker to push a tracking number.
type UpdateTrackingPayload struct {
	OrderID        string `json:"orderId"`
	ErpOrderCode   string `json:"erpOrderCode"`
	TrackingNumber string `json:"trackingNumber"`
	EcountLink     string `json:"ecountLink"`
}

// UpdateStatusPayload asks the ERP worker to push a fulfillment status.
type UpdateStatusPayload struct {
	OrderID        string `json:"orderId"`
	ErpOrderCode   string `json:"erpOrderCode"`
	TrackingNumber string `json:"trackingNumber"`
	Status         string `json:"status"`
	EcountLink     string `json:"ecountLink"`
}

// LookupDocNoPayload asks the ERP worker to resolve document numbers for a
// batch of slip numbers. OrderIDs is parallel to SlipNos.
type LookupDocNoPayload struct {
	SlipNos  []string `json:"slipNos"`
	OrderIDs []string `json:"orderIds"`
}

// OrderStore is the slice of the order store the ERP handlers use.
type OrderStore interface {
	Find(ctx context.Context, id string) (*order.Order, error)
	SetDocNo(ctx context.Context, id, docNo string) error
	MarkTrackingSynced(ctx context.Context, id string) error
}

// Handlers executes ERP jobs against the gateway.
type Handlers struct {
	gateway Gateway
	orders  OrderStore
	logger  *logging.Logger
}

func NewHandlers(gateway Gateway, orders OrderStore, logger *logging.Logger) *Handlers {
	return &Handlers{gateway: gateway, orders: orders, logger: logger}
}

// RegisterAll wires every ERP job type into the registry.
func (h *Handlers) RegisterAll(reg *queue.Registry) error {
	if err := reg.Register(JobUpdateTracking, queue.HandlerFunc(h.HandleUpdateTracking)); err != nil {
		return err
	}
	if err := reg.Register(JobUpdateStatus, queue.HandlerFunc(h.HandleUpdateStatus)); err != nil {
		return err
	}
	return reg.Register(JobLookupDocNo, queue.HandlerFunc(h.HandleLookupDocNo))
}

// HandleUpdateTracking pushes a tracking number into the ERP and marks the
// order synced. A deleted order is skipped without retry.
func (h *Handlers) HandleUpdateTracking(ctx context.Context, job *queue.Job) (queue.Result, error) {
	var p UpdateTrackingPayload
	if err := job.UnmarshalPayload(&p); err != nil {
		return queue.Result{}, fmt.Errorf("decode payload: %w", err)
	}

	o, err := h.orders.Find(ctx, p.OrderID)
	if errors.Is(err, order.ErrNotFound) {
		return queue.Result{Skipped: true, Detail: "order no longer exists"}, nil
	}
	if err != nil {
		return queue.Result{}, err
	}
	if o.Status == order.StatusDeleted {
		return queue.Result{Skipped: true, Detail: "order deleted"}, nil
	}
	if o.TrackingSynced && o.TrackingNumber == p.TrackingNumber {
		return queue.Result{Skipped: true, Detail: "tracking already synced"}, nil
	}

	if err := h.gateway.UpdateTracking(ctx, p.ErpOrderCode, p.TrackingNumber, p.EcountLink); err != nil {
		return queue.Result{}, err
	}
	if err := h.orders.MarkTrackingSynced(ctx, p.OrderID); err != nil {
		return queue.Result{}, fmt.Errorf("mark synced: %w", err)
	}
	return queue.Result{}, nil
}

// HandleUpdateStatus pushes a fulfillment status into the ERP.
func (h *Handlers) HandleUpdateStatus(ctx context.Context, job *queue.Job) (queue.Result, error) {
	var p UpdateStatusPayload
	if err := job.UnmarshalPayload(&p); err != nil {
		return queue.Result{}, fmt.Errorf("decode payload: %w", err)
	}

	o, err := h.orders.Find(ctx, p.OrderID)
	if errors.Is(err, order.ErrNotFound) {
		return queue.Result{Skipped: true, Detail: "order no longer exists"}, nil
	}
	if err != nil {
		return queue.Result{}, err
	}
	if o.Status == order.StatusDeleted {
		return queue.Result{Skipped: true, Detail: "order deleted"}, nil
	}

	if err := h.gateway.UpdateStatus(ctx, p.ErpOrderCode, p.Status, p.EcountLink); err != nil {
		return queue.Result{}, err
	}
	return queue.Result{}, nil
}

// HandleLookupDocNo resolves document numbers for a batch of slip numbers and
// stores each hit on its order. Slips the ERP cannot resolve yet are left for
// the next sync pass rather than failing the batch.
func (h *Handlers) HandleLookupDocNo(ctx context.Context, job *queue.Job) (queue.Result, error) {
	var p LookupDocNoPayload
	if err := job.UnmarshalPayload(&p); err != nil {
		return queue.Result{}, fmt.Errorf("decode payload: %w", err)
	}
	if len(p.SlipNos) == 0 {
		return queue.Result{Skipped: true, Detail: "empty batch"}, nil
	}
	if len(p.SlipNos) != len(p.OrderIDs) {
		return queue.Result{Skipped: true, Detail: "malformed batch"}, nil
	}

	results, err := h.gateway.LookupDocNo(ctx, p.SlipNos)
	if err != nil {
		return queue.Result{}, err
	}

	byslip := make(map[string]string, len(results))
	for _, r := range results {
		if r.DocNo != "" {
			byslip[r.SlipNo] = r.DocNo
		}
	}

	resolved := 0
	for i, slip := range p.SlipNos {
		docNo, ok := byslip[slip]
		if !ok {
			continue
		}
		if err := h.orders.SetDocNo(ctx, p.OrderIDs[i], docNo); err != nil {
			return queue.Result{}, fmt.Errorf("store docno for %s: %w", p.OrderIDs[i], err)
		}
		resolved++
	}
	h.logger.WithContext(ctx).
		WithJob(job.ID, job.Type).
		WithField("resolved", resolved).
		WithField("batch", len(p.SlipNos)).
		Info("docno lookup finished")
	return queue.Result{}, nil
}
