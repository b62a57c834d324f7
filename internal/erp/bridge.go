package erp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/QuangSon1901/ecount-integration-sub001/internal/logging"
)

// BridgeGateway implements Gateway against the ecount-bridge service, which
// automates the ERP web UI. Every call carries the cached session token; a
// 401 from the bridge surfaces as ErrSessionExpired.
type BridgeGateway struct {
	base     string
	httpcli  *http.Client
	sessions SessionStore
	logger   *logging.Logger

	mu sync.Mutex // serializes session refresh
}

func NewBridgeGateway(base string, timeout time.Duration, sessions SessionStore, logger *logging.Logger) *BridgeGateway {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &BridgeGateway{
		base:     base,
		httpcli:  &http.Client{Timeout: timeout},
		sessions: sessions,
		logger:   logger,
	}
}

func (g *BridgeGateway) FetchOrders(ctx context.Context, since time.Time) ([]ErpOrder, error) {
	var out struct {
		Orders []ErpOrder `json:"orders"`
	}
	err := g.call(ctx, http.MethodGet,
		fmt.Sprintf("/v1/orders?since=%s", since.UTC().Format(time.RFC3339)), nil, &out)
	if err != nil {
		return nil, err
	}
	return out.Orders, nil
}

func (g *BridgeGateway) LookupDocNo(ctx context.Context, slipNos []string) ([]DocNoResult, error) {
	body := map[string]any{"slipNos": slipNos}
	var out struct {
		Results []DocNoResult `json:"results"`
	}
	if err := g.call(ctx, http.MethodPost, "/v1/docno/lookup", body, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

func (g *BridgeGateway) UpdateTracking(ctx context.Context, orderCode, trackingNumber, link string) error {
	body := map[string]any{
		"orderCode":      orderCode,
		"trackingNumber": trackingNumber,
		"link":           link,
	}
	return g.call(ctx, http.MethodPost, "/v1/orders/tracking", body, nil)
}

func (g *BridgeGateway) UpdateStatus(ctx context.Context, orderCode, status, link string) error {
	body := map[string]any{
		"orderCode": orderCode,
		"status":    status,
		"link":      link,
	}
	return g.call(ctx, http.MethodPost, "/v1/orders/status", body, nil)
}

// RefreshSession asks the bridge to log in again and caches the new session.
// Concurrent callers are serialized; the second caller finds a fresh session
// already saved and reuses it.
func (g *BridgeGateway) RefreshSession(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if sess, err := g.sessions.Load(ctx); err == nil && sess.Valid(time.Now()) {
		// Another caller refreshed while we were waiting on the lock.
		if time.Since(sess.IssuedAt) < time.Minute {
			return nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.base+"/v1/session", nil)
	if err != nil {
		return fmt.Errorf("build session request: %w", err)
	}
	resp, err := g.httpcli.Do(req)
	if err != nil {
		return fmt.Errorf("erp session request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("erp session returned status %d", resp.StatusCode)
	}

	var payload struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expiresAt"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("decode session response: %w", err)
	}

	sess := &Session{Token: payload.Token, IssuedAt: time.Now(), ExpiresAt: payload.ExpiresAt}
	if err := g.sessions.Save(ctx, sess); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	g.logger.WithContext(ctx).WithField("expires_at", sess.ExpiresAt.Format(time.RFC3339)).Info("erp session refreshed")
	return nil
}

func (g *BridgeGateway) call(ctx context.Context, method, path string, body, out any) error {
	sess, err := g.sessions.Load(ctx)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if !sess.Valid(time.Now()) {
		return ErrSessionExpired
	}

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, g.base+path, &buf)
	if err != nil {
		return fmt.Errorf("build erp request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Erp-Session", sess.Token)

	resp, err := g.httpcli.Do(req)
	if err != nil {
		return fmt.Errorf("erp request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrSessionExpired
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("erp bridge returned status %d", resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode erp response: %w", err)
		}
	}
	return nil
}
