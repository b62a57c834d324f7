// Package carrier talks to the shipping aggregator that fronts the
// individual carriers (GHN, GHTK, VTP). Order lookups and tracking queries
// go through a single HTTP gateway; the carrier code selects the upstream.
package carrier

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"time"
)

// OrderInfo is the aggregator's view of a shipment.
type OrderInfo struct {
	TrackingNumber string `json:"trackingNumber"`
	PackageStatus  string `json:"packageStatus"`
	Carrier        string `json:"carrier"`
	UpdatedAt      string `json:"updatedAt"`
}

// Client fetches shipment state for one carrier.
type Client interface {
	// GetOrderInfo looks a shipment up by the merchant's order code.
	GetOrderInfo(ctx context.Context, orderCode string) (*OrderInfo, error)
	// TrackOrder looks a shipment up by its tracking number.
	TrackOrder(ctx context.Context, trackingNumber string) (*OrderInfo, error)
}

// HTTPClient implements Client against the aggregator gateway.
type HTTPClient struct {
	base    string
	code    string
	httpcli *http.Client
}

func NewHTTPClient(base, carrierCode string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		base:    base,
		code:    carrierCode,
		httpcli: &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) GetOrderInfo(ctx context.Context, orderCode string) (*OrderInfo, error) {
	return c.get(ctx, "/v1/orders", "orderCode", orderCode)
}

func (c *HTTPClient) TrackOrder(ctx context.Context, trackingNumber string) (*OrderInfo, error) {
	return c.get(ctx, "/v1/tracking", "trackingNumber", trackingNumber)
}

func (c *HTTPClient) get(ctx context.Context, path, key, value string) (*OrderInfo, error) {
	q := url.Values{}
	q.Set("carrier", c.code)
	q.Set(key, value)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build carrier request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpcli.Do(req)
	if err != nil {
		return nil, fmt.Errorf("carrier %s request: %w", c.code, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		// Not-found is a valid carrier answer, not a transport failure.
		return &OrderInfo{Carrier: c.code, PackageStatus: "N"}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("carrier %s returned status %d", c.code, resp.StatusCode)
	}

	var info OrderInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode carrier response: %w", err)
	}
	if info.Carrier == "" {
		info.Carrier = c.code
	}
	return &info, nil
}

// Registry maps carrier codes to clients.
type Registry struct {
	clients map[string]Client
}

func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]Client)}
}

func (r *Registry) Register(code string, c Client) {
	r.clients[code] = c
}

// Lookup returns the client for a carrier code.
func (r *Registry) Lookup(code string) (Client, error) {
	c, ok := r.clients[code]
	if !ok {
		return nil, fmt.Errorf("unknown carrier %q", code)
	}
	return c, nil
}

// Codes returns registered carrier codes in sorted order.
func (r *Registry) Codes() []string {
	out := make([]string, 0, len(r.clients))
	for code := range r.clients {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}
