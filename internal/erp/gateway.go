// Package erp integrates with the Ecount ERP through a bridge service that
// drives the ERP's web UI. Sessions are expensive to establish, so one live
// session is cached in Postgres and shared by all callers.
package erp

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrSessionExpired reports that the cached ERP session was rejected. The
// caller refreshes the session and retries once.
var ErrSessionExpired = errors.New("erp session expired")

// IsSessionExpired reports whether an error (possibly wrapped, possibly
// reconstructed from a job's stored error text) indicates a dead session.
func IsSessionExpired(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrSessionExpired) {
		return true
	}
	return strings.Contains(err.Error(), "session expired")
}

// ErpOrder is one sales order as reported by Ecount.
type ErpOrder struct {
	OrderCode  string `json:"orderCode"`
	Status     string `json:"status"`
	CustomerID string `json:"customerId"`
	Carrier    string `json:"carrier"`
	Link       string `json:"link"`
}

// DocNoResult maps a slip number to its resolved document number.
type DocNoResult struct {
	SlipNo string `json:"slipNo"`
	DocNo  string `json:"docNo"`
}

// Gateway is the full ERP surface the workers and producers depend on.
type Gateway interface {
	// FetchOrders pulls the current sales-order list for a date window.
	FetchOrders(ctx context.Context, since time.Time) ([]ErpOrder, error)
	// LookupDocNo resolves document numbers for a batch of slip numbers.
	LookupDocNo(ctx context.Context, slipNos []string) ([]DocNoResult, error)
	// UpdateTracking writes a tracking number onto an ERP order.
	UpdateTracking(ctx context.Context, orderCode, trackingNumber, link string) error
	// UpdateStatus writes a fulfillment status onto an ERP order.
	UpdateStatus(ctx context.Context, orderCode, status, link string) error
	// RefreshSession forces a new login, replacing the cached session.
	RefreshSession(ctx context.Context) error
}
