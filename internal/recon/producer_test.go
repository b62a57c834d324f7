package recon

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/QuangSon1901/ecount-integration-sub001/internal/alert"
	"github.com/QuangSon1901/ecount-integration-sub001/internal/carrier"
	"github.com/QuangSon1901/ecount-integration-sub001/internal/erp"
	"github.com/QuangSon1901/ecount-integration-sub001/internal/logging"
	"github.com/QuangSon1901/ecount-integration-sub001/internal/order"
	"github.com/QuangSon1901/ecount-integration-sub001/internal/runlog"
)

type fakeOrders struct {
	open     []*order.Order
	applied  map[string]string // order id -> label
	tracking map[string]string
	applyErr map[string]error
}

func newFakeOrders(open ...*order.Order) *fakeOrders {
	return &fakeOrders{
		open:     open,
		applied:  make(map[string]string),
		tracking: make(map[string]string),
		applyErr: make(map[string]error),
	}
}

func (f *fakeOrders) ListOpen(ctx context.Context) ([]*order.Order, error) { return f.open, nil }

func (f *fakeOrders) ApplyStatus(ctx context.Context, id, pkg, label string) error {
	if err := f.applyErr[id]; err != nil {
		return err
	}
	f.applied[id] = label
	return nil
}

func (f *fakeOrders) SetTracking(ctx context.Context, id, tn string) error {
	f.tracking[id] = tn
	return nil
}

type fakeCarrier struct {
	info *carrier.OrderInfo
	err  error
}

func (f *fakeCarrier) GetOrderInfo(ctx context.Context, orderCode string) (*carrier.OrderInfo, error) {
	return f.info, f.err
}

func (f *fakeCarrier) TrackOrder(ctx context.Context, trackingNumber string) (*carrier.OrderInfo, error) {
	return f.info, f.err
}

type fakeJobs struct {
	enqueued []struct {
		Type    string
		Payload []byte
	}
}

func (f *fakeJobs) Enqueue(ctx context.Context, jobType string, payload any, delay time.Duration, maxAttempts int) (string, error) {
	raw, _ := json.Marshal(payload)
	f.enqueued = append(f.enqueued, struct {
		Type    string
		Payload []byte
	}{jobType, raw})
	return "job-x", nil
}

func (f *fakeJobs) ofType(jobType string) int {
	n := 0
	for _, j := range f.enqueued {
		if j.Type == jobType {
			n++
		}
	}
	return n
}

type fakeDispatcher struct {
	events []StatusEvent
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, customerID, event, orderID string, data any) (int, error) {
	raw, _ := json.Marshal(data)
	var ev StatusEvent
	json.Unmarshal(raw, &ev)
	f.events = append(f.events, ev)
	return 1, nil
}

type fakeNotifier struct {
	notes []alert.Notification
}

func (f *fakeNotifier) Notify(ctx context.Context, n alert.Notification) error {
	f.notes = append(f.notes, n)
	return nil
}

// eligibleOrders filters ListOpen the way the production store does: an order
// qualifies when its label is not terminal and it has either a tracking number
// or an ERP order code to discover one by.
type eligibleOrders struct {
	*fakeOrders
}

func (f *eligibleOrders) ListOpen(ctx context.Context) ([]*order.Order, error) {
	terminal := map[string]bool{
		string(LabelHaveBeenReceived): true,
		string(LabelReturned):         true,
		string(LabelDeleted):          true,
	}
	var out []*order.Order
	for _, o := range f.open {
		if terminal[o.Label] {
			continue
		}
		if o.TrackingNumber == "" && o.ErpOrderCode == "" {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

func testReconciler(orders OrderStore, reg *carrier.Registry, jobs *fakeJobs, disp *fakeDispatcher, notes *fakeNotifier) *Reconciler {
	return NewReconciler(orders, reg, jobs, disp, notes, runlog.NopRecorder{},
		logging.New("test"), time.Minute, 3)
}

func registryWith(code string, c carrier.Client) *carrier.Registry {
	reg := carrier.NewRegistry()
	reg.Register(code, c)
	return reg
}

func TestReconcileAppliesTransition(t *testing.T) {
	o := &order.Order{
		ID: "o1", CustomerID: "c1", Carrier: "GHN",
		TrackingNumber: "GHN1", ErpOrderCode: "SO-1", ErpStatus: "V",
		EcountLink: "https://ec/1",
		Label:      string(LabelInTransit), PackageStatus: "T",
	}
	orders := newFakeOrders(o)
	jobs := &fakeJobs{}
	disp := &fakeDispatcher{}
	notes := &fakeNotifier{}
	reg := registryWith("GHN", &fakeCarrier{info: &carrier.OrderInfo{PackageStatus: "D", TrackingNumber: "GHN1"}})

	testReconciler(orders, reg, jobs, disp, notes).RunOnce(context.Background())

	if orders.applied["o1"] != string(LabelHaveBeenReceived) {
		t.Errorf("applied label = %q, want %q", orders.applied["o1"], LabelHaveBeenReceived)
	}
	if jobs.ofType(erp.JobUpdateStatus) != 1 {
		t.Errorf("erp status jobs = %d, want 1", jobs.ofType(erp.JobUpdateStatus))
	}
	var sp erp.UpdateStatusPayload
	json.Unmarshal(jobs.enqueued[0].Payload, &sp)
	if sp.TrackingNumber != "GHN1" || sp.EcountLink != "https://ec/1" {
		t.Errorf("status payload = %+v, want tracking number and link carried through", sp)
	}
	if len(disp.events) != 1 {
		t.Fatalf("webhook events = %d, want 1", len(disp.events))
	}
	ev := disp.events[0]
	if ev.Label != string(LabelHaveBeenReceived) || ev.PreviousLabel != string(LabelInTransit) {
		t.Errorf("event = %+v", ev)
	}
	if len(notes.notes) != 0 {
		t.Error("delivered order must not alert")
	}
}

func TestReconcileUnknownIsNoOp(t *testing.T) {
	o := &order.Order{
		ID: "o1", CustomerID: "c1", Carrier: "GHN",
		TrackingNumber: "GHN1", ErpStatus: "",
		Label: string(LabelInTransit), PackageStatus: "T",
	}
	orders := newFakeOrders(o)
	jobs := &fakeJobs{}
	disp := &fakeDispatcher{}
	reg := registryWith("GHN", &fakeCarrier{info: &carrier.OrderInfo{PackageStatus: ""}})

	testReconciler(orders, reg, jobs, disp, &fakeNotifier{}).RunOnce(context.Background())

	if _, ok := orders.applied["o1"]; ok {
		t.Error("unknown resolution must not overwrite the order")
	}
	if len(jobs.enqueued) != 0 || len(disp.events) != 0 {
		t.Error("unknown resolution must not propagate anything")
	}
}

func TestReconcileNoChangeNoPropagation(t *testing.T) {
	o := &order.Order{
		ID: "o1", CustomerID: "c1", Carrier: "GHN",
		TrackingNumber: "GHN1", ErpStatus: "R",
		Label: string(LabelReceived), PackageStatus: "T",
	}
	orders := newFakeOrders(o)
	jobs := &fakeJobs{}
	disp := &fakeDispatcher{}
	reg := registryWith("GHN", &fakeCarrier{info: &carrier.OrderInfo{PackageStatus: "T"}})

	testReconciler(orders, reg, jobs, disp, &fakeNotifier{}).RunOnce(context.Background())

	if _, ok := orders.applied["o1"]; ok {
		t.Error("unchanged state must not be rewritten")
	}
	if len(disp.events) != 0 {
		t.Error("unchanged state must not emit webhooks")
	}
}

func TestReconcileAlertsOnReturn(t *testing.T) {
	o := &order.Order{
		ID: "o1", CustomerID: "c1", Carrier: "GHTK",
		TrackingNumber: "GT1", ErpStatus: "V",
		Label: string(LabelShipped), PackageStatus: "T",
	}
	orders := newFakeOrders(o)
	notes := &fakeNotifier{}
	reg := registryWith("GHTK", &fakeCarrier{info: &carrier.OrderInfo{PackageStatus: "R"}})

	testReconciler(orders, reg, &fakeJobs{}, &fakeDispatcher{}, notes).RunOnce(context.Background())

	if orders.applied["o1"] != string(LabelReturned) {
		t.Errorf("applied = %q, want Returned", orders.applied["o1"])
	}
	if len(notes.notes) != 1 || notes.notes[0].Label != string(LabelReturned) {
		t.Errorf("alerts = %+v, want one Returned alert", notes.notes)
	}
}

func TestReconcileDiscoversTrackingNumber(t *testing.T) {
	o := &order.Order{
		ID: "o1", CustomerID: "c1", Carrier: "VTP",
		ErpOrderCode: "SO-1", ErpStatus: "V",
		Label: string(LabelProcessed), PackageStatus: "F",
	}
	orders := newFakeOrders(o)
	jobs := &fakeJobs{}
	reg := registryWith("VTP", &fakeCarrier{info: &carrier.OrderInfo{PackageStatus: "T", TrackingNumber: "VTP77"}})

	testReconciler(orders, reg, jobs, &fakeDispatcher{}, &fakeNotifier{}).RunOnce(context.Background())

	if orders.tracking["o1"] != "VTP77" {
		t.Errorf("tracking = %q, want VTP77", orders.tracking["o1"])
	}
	if jobs.ofType(erp.JobUpdateTracking) != 1 {
		t.Errorf("tracking jobs = %d, want 1", jobs.ofType(erp.JobUpdateTracking))
	}
}

func TestReconcileReachesOrdersAwaitingTracking(t *testing.T) {
	awaiting := &order.Order{
		ID: "o1", CustomerID: "c1", Carrier: "VTP",
		ErpOrderCode: "SO-9", ErpStatus: "V",
		Label: string(LabelProcessed), PackageStatus: "F",
	}
	orphan := &order.Order{ID: "o2", CustomerID: "c1", Carrier: "VTP"}
	orders := &eligibleOrders{newFakeOrders(awaiting, orphan)}
	jobs := &fakeJobs{}
	reg := registryWith("VTP", &fakeCarrier{info: &carrier.OrderInfo{PackageStatus: "T", TrackingNumber: "VTP42"}})

	testReconciler(orders, reg, jobs, &fakeDispatcher{}, &fakeNotifier{}).RunOnce(context.Background())

	if orders.tracking["o1"] != "VTP42" {
		t.Errorf("tracking for o1 = %q, want VTP42 discovered via the ERP order code", orders.tracking["o1"])
	}
	if jobs.ofType(erp.JobUpdateTracking) != 1 {
		t.Errorf("tracking jobs = %d, want 1", jobs.ofType(erp.JobUpdateTracking))
	}
	if _, ok := orders.tracking["o2"]; ok {
		t.Error("order with neither tracking number nor ERP code must stay out of the pass")
	}
}

func TestReconcileIsolatesFailingOrders(t *testing.T) {
	bad := &order.Order{ID: "bad", CustomerID: "c1", Carrier: "GHN", TrackingNumber: "B1", ErpStatus: "V", PackageStatus: "T", Label: string(LabelShipped)}
	good := &order.Order{ID: "good", CustomerID: "c1", Carrier: "GHN", TrackingNumber: "G1", ErpStatus: "V", PackageStatus: "T", Label: string(LabelShipped)}
	orders := newFakeOrders(bad, good)
	orders.applyErr["bad"] = errors.New("db write failed")

	reg := registryWith("GHN", &fakeCarrier{info: &carrier.OrderInfo{PackageStatus: "D"}})
	testReconciler(orders, reg, &fakeJobs{}, &fakeDispatcher{}, &fakeNotifier{}).RunOnce(context.Background())

	if _, ok := orders.applied["bad"]; ok {
		t.Error("failing order applied anyway")
	}
	if orders.applied["good"] != string(LabelHaveBeenReceived) {
		t.Error("one failing order must not block the rest of the pass")
	}
}

func TestReconcileUnknownCarrierSkipsOrder(t *testing.T) {
	o := &order.Order{ID: "o1", CustomerID: "c1", Carrier: "DHL", TrackingNumber: "X1"}
	orders := newFakeOrders(o)

	testReconciler(orders, carrier.NewRegistry(), &fakeJobs{}, &fakeDispatcher{}, &fakeNotifier{}).RunOnce(context.Background())

	if len(orders.applied) != 0 {
		t.Error("order with unregistered carrier must be left alone")
	}
}
