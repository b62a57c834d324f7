package order

import "time"

// Internal order lifecycle states this subsystem cares about. Orders are
// created elsewhere; a deleted order means its ERP jobs become no-ops.
const (
	StatusActive  = "active"
	StatusDeleted = "deleted"
)

// Order is a shipment correlated with an external Ecount record. This
// subsystem mutates its status fields during reconciliation and ERP sync;
// orders are never deleted here.
type Order struct {
	ID             string    `json:"id"`
	CustomerID     string    `json:"customer_id"`
	Status         string    `json:"status"` // internal lifecycle, CRUD-owned
	Carrier        string    `json:"carrier"`
	TrackingNumber string    `json:"tracking_number"`
	ErpOrderCode   string    `json:"erp_order_code"`
	ErpDocNo       string    `json:"erp_doc_no"`
	ErpStatus      string    `json:"erp_status"`      // raw ERP order status code
	PackageStatus  string    `json:"package_status"`  // raw carrier package status code
	Label          string    `json:"label"`           // canonical derived status
	EcountLink     string    `json:"ecount_link"`
	TrackingSynced bool      `json:"tracking_synced"` // tracking number pushed to Ecount
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
