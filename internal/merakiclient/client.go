// Package merakiclient is the thin, cancellable façade over the Cisco Meraki
// dashboard REST API that the engine drives behind its concurrency-limited
// pipeline. Every call takes a context and returns a categorized error, the
// only error shape the rest of the engine inspects.
package merakiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/domain"
	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/telemetry/logging"
	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/telemetry/metrics"
)

// Client is the vendor API façade consumed by collectors. Implementations
// must be safe for concurrent use.
type Client interface {
	ListOrganizations(ctx context.Context) ([]domain.Organization, error)
	ListNetworks(ctx context.Context, orgID string) ([]domain.Network, error)
	ListDevices(ctx context.Context, orgID string, productTypes []string) ([]domain.Device, error)
	// Get performs an arbitrary authenticated GET against path, decoding the
	// response into out. Family sub-collectors use this for per-device-family
	// data endpoints not enumerated individually by this interface.
	Get(ctx context.Context, path string, out interface{}) error
}

// limiter is the subset of pipeline.Limiter this package depends on. Defined
// locally rather than imported so merakiclient never depends on pipeline,
// which already depends on merakiclient for cc.Client.
type limiter interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

type noopLimiter struct{}

func (noopLimiter) Do(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }

// HTTPClient implements Client over net/http.
type HTTPClient struct {
	baseURL  string
	apiKey   string
	http     *http.Client
	limiter  limiter
	apiCalls metrics.Counter
}

// Options configures a new HTTPClient.
type Options struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// Limiter gates every call through the global concurrency/pause
	// semaphore; if nil, calls run unthrottled (used by tests).
	Limiter limiter
	// Metrics records api_calls_total{collector, endpoint}; if nil,
	// calls are still made but go unaccounted (used by tests).
	Metrics metrics.Provider
}

// New returns an HTTPClient configured per opts.
func New(opts Options) *HTTPClient {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	lim := opts.Limiter
	if lim == nil {
		lim = noopLimiter{}
	}
	provider := opts.Metrics
	if provider == nil {
		provider = metrics.NewNoopProvider()
	}
	apiCalls := provider.NewCounter(metrics.CounterOpts{CommonOpts: metrics.CommonOpts{
		Namespace: "meraki",
		Name:      "api_calls_total",
		Help:      "API calls issued by the Meraki façade, attributed to the collector that requested them.",
		Labels:    []string{"collector", "endpoint"},
	}})
	return &HTTPClient{
		baseURL:  opts.BaseURL,
		apiKey:   opts.APIKey,
		http:     &http.Client{Timeout: timeout},
		limiter:  lim,
		apiCalls: apiCalls,
	}
}

func (c *HTTPClient) ListOrganizations(ctx context.Context) ([]domain.Organization, error) {
	var raw []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := c.Get(ctx, "/organizations", &raw); err != nil {
		return nil, err
	}
	out := make([]domain.Organization, 0, len(raw))
	for _, o := range raw {
		out = append(out, domain.Organization{ID: o.ID, Name: o.Name})
	}
	return out, nil
}

func (c *HTTPClient) ListNetworks(ctx context.Context, orgID string) ([]domain.Network, error) {
	var raw []struct {
		ID           string   `json:"id"`
		Name         string   `json:"name"`
		ProductTypes []string `json:"productTypes"`
	}
	if err := c.Get(ctx, fmt.Sprintf("/organizations/%s/networks", orgID), &raw); err != nil {
		return nil, err
	}
	out := make([]domain.Network, 0, len(raw))
	for _, n := range raw {
		out = append(out, domain.Network{ID: n.ID, OrgID: orgID, Name: n.Name, ProductTypes: n.ProductTypes})
	}
	return out, nil
}

func (c *HTTPClient) ListDevices(ctx context.Context, orgID string, productTypes []string) ([]domain.Device, error) {
	path := fmt.Sprintf("/organizations/%s/devices", orgID)
	if len(productTypes) > 0 {
		q := ""
		for _, pt := range productTypes {
			if q != "" {
				q += "&"
			}
			q += "productTypes[]=" + pt
		}
		path += "?" + q
	}
	var raw []struct {
		Serial      string `json:"serial"`
		NetworkID   string `json:"networkId"`
		Model       string `json:"model"`
		ProductType string `json:"productType"`
		Name        string `json:"name"`
		Status      string `json:"status"`
	}
	if err := c.Get(ctx, path, &raw); err != nil {
		return nil, err
	}
	out := make([]domain.Device, 0, len(raw))
	for _, d := range raw {
		out = append(out, domain.Device{
			Serial: d.Serial, NetworkID: d.NetworkID, OrgID: orgID,
			Model: d.Model, ProductType: d.ProductType, Name: d.Name, Status: d.Status,
		})
	}
	return out, nil
}

// Get issues an authenticated GET against path (relative to BaseURL) and
// decodes the normalized response body into out. The dashboard API returns
// either a bare JSON array or an object with an "items" array; Get
// normalizes both shapes at this single boundary per the engine's design
// notes. Any other shape is reported as a parsing error.
func (c *HTTPClient) Get(ctx context.Context, path string, out interface{}) error {
	return c.limiter.Do(ctx, func(ctx context.Context) error {
		return c.doGet(ctx, path, out)
	})
}

func (c *HTTPClient) doGet(ctx context.Context, path string, out interface{}) error {
	c.apiCalls.Inc(1, logging.CollectorFrom(ctx), endpointLabel(path))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return &domain.APIError{Category: domain.ErrValidation, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return &domain.APIError{Category: domain.ErrCancellation, Err: ctx.Err()}
		}
		return &domain.APIError{Category: domain.ErrTimeout, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &domain.APIError{Category: domain.ErrParsing, Err: err}
	}

	if apiErr := categorizeStatus(resp); apiErr != nil {
		return apiErr
	}

	return normalizeAndDecode(body, out)
}

// endpointLabel strips the query string from path so that distinct filter
// sets (e.g. listDevices' productTypes[] query params) don't fragment
// api_calls_total into one series per filter combination.
func endpointLabel(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		return path[:i]
	}
	return path
}

// categorizeStatus maps an HTTP response's status code onto the error
// taxonomy. It returns nil for 2xx.
func categorizeStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := 0
		if v := resp.Header.Get("Retry-After"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				retryAfter = n
			}
		}
		return &domain.APIError{Category: domain.ErrAPIRateLimit, StatusCode: resp.StatusCode, RetryAfter: retryAfter, Err: fmt.Errorf("rate limited")}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &domain.APIError{Category: domain.ErrAPIAuthError, StatusCode: resp.StatusCode, Err: fmt.Errorf("auth failed")}
	case resp.StatusCode == http.StatusNotFound:
		return &domain.APIError{Category: domain.ErrAPINotFound, StatusCode: resp.StatusCode, Err: fmt.Errorf("not found")}
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return &domain.APIError{Category: domain.ErrAPIClientError, StatusCode: resp.StatusCode, Err: fmt.Errorf("client error")}
	case resp.StatusCode >= 500:
		return &domain.APIError{Category: domain.ErrAPIServerError, StatusCode: resp.StatusCode, Err: fmt.Errorf("server error")}
	default:
		return &domain.APIError{Category: domain.ErrParsing, StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected status")}
	}
}

// normalizeAndDecode accepts either a bare JSON array or {"items": [...]}
// and unmarshals into out, which must point to a slice or a struct matching
// the payload. Any other top-level shape is a parsing error.
func normalizeAndDecode(body []byte, out interface{}) error {
	var probe interface{}
	if err := json.Unmarshal(body, &probe); err != nil {
		return &domain.APIError{Category: domain.ErrParsing, Err: err}
	}
	switch v := probe.(type) {
	case []interface{}:
		if err := json.Unmarshal(body, out); err != nil {
			return &domain.APIError{Category: domain.ErrParsing, Err: err}
		}
		return nil
	case map[string]interface{}:
		if items, ok := v["items"]; ok {
			b, err := json.Marshal(items)
			if err != nil {
				return &domain.APIError{Category: domain.ErrParsing, Err: err}
			}
			if err := json.Unmarshal(b, out); err != nil {
				return &domain.APIError{Category: domain.ErrParsing, Err: err}
			}
			return nil
		}
		if err := json.Unmarshal(body, out); err != nil {
			return &domain.APIError{Category: domain.ErrParsing, Err: err}
		}
		return nil
	default:
		return &domain.APIError{Category: domain.ErrParsing, Err: fmt.Errorf("unexpected top-level JSON shape")}
	}
}
