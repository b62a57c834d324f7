package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when an order does not exist.
var ErrNotFound = errors.New("order not found")

const orderColumns = `id, customer_id, status, carrier, tracking_number, erp_order_code, erp_doc_no, erp_status, package_status, label, ecount_link, tracking_synced, created_at, updated_at`

// PgStore persists orders in Postgres.
type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// Find returns one order by id.
func (s *PgStore) Find(ctx context.Context, id string) (*Order, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM orders WHERE id=$1`, orderColumns), id)
	return scanOrder(row)
}

// FindByErpCode returns the order correlated to an Ecount order code.
func (s *PgStore) FindByErpCode(ctx context.Context, erpOrderCode string) (*Order, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM orders WHERE erp_order_code=$1`, orderColumns), erpOrderCode)
	return scanOrder(row)
}

// ListOpen returns orders still worth reconciling: the derived label has not
// reached a terminal outcome, and the order is either trackable already or
// carries an ERP order code the carrier can discover a tracking number by.
func (s *PgStore) ListOpen(ctx context.Context) ([]*Order, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM orders
		WHERE (tracking_number <> '' OR erp_order_code <> '')
		  AND label NOT IN ('Have been received', 'Returned', 'Deleted')
		ORDER BY updated_at ASC`, orderColumns))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOrders(rows)
}

// ListDocNoMissing returns orders that have an Ecount order code but no
// document number yet.
func (s *PgStore) ListDocNoMissing(ctx context.Context, limit int) ([]*Order, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM orders
		WHERE erp_order_code <> '' AND erp_doc_no = ''
		ORDER BY created_at ASC
		LIMIT $1`, orderColumns), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOrders(rows)
}

// ApplyStatus persists the outcome of a reconciliation pass: the raw package
// status and the derived label.
func (s *PgStore) ApplyStatus(ctx context.Context, id, packageStatus, label string) error {
	ct, err := s.pool.Exec(ctx, `
		UPDATE orders SET package_status=$2, label=$3, updated_at=now()
		WHERE id=$1`, id, packageStatus, label)
	if err != nil {
		return fmt.Errorf("apply status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetErpStatus refreshes the raw ERP order status code from a sync pass.
func (s *PgStore) SetErpStatus(ctx context.Context, id, erpStatus string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE orders SET erp_status=$2, updated_at=now() WHERE id=$1`, id, erpStatus)
	return err
}

// SetTracking stores a tracking number discovered from the carrier.
func (s *PgStore) SetTracking(ctx context.Context, id, trackingNumber string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE orders SET tracking_number=$2, tracking_synced=false, updated_at=now() WHERE id=$1`, id, trackingNumber)
	return err
}

// SetDocNo stores the Ecount document number resolved for an order.
func (s *PgStore) SetDocNo(ctx context.Context, id, docNo string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE orders SET erp_doc_no=$2, updated_at=now() WHERE id=$1`, id, docNo)
	return err
}

// MarkTrackingSynced records that the tracking number reached Ecount.
func (s *PgStore) MarkTrackingSynced(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE orders SET tracking_synced=true, updated_at=now() WHERE id=$1`, id)
	return err
}

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(
		&o.ID, &o.CustomerID, &o.Status, &o.Carrier, &o.TrackingNumber,
		&o.ErpOrderCode, &o.ErpDocNo, &o.ErpStatus, &o.PackageStatus, &o.Label,
		&o.EcountLink, &o.TrackingSynced, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &o, nil
}

func collectOrders(rows pgx.Rows) ([]*Order, error) {
	var out []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
