package merakiclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/domain"
	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/telemetry/logging"
	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/telemetry/metrics"
)

func TestListOrganizationsBareArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id":"1","name":"Org One"},{"id":"2","name":"Org Two"}]`))
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL, APIKey: "test"})
	orgs, err := c.ListOrganizations(context.Background())
	require.NoError(t, err)
	require.Len(t, orgs, 2)
	assert.Equal(t, "Org One", orgs[0].Name)
}

func TestListNetworksItemsWrapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"items":[{"id":"n1","name":"Net1","productTypes":["wireless"]}]}`))
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL, APIKey: "test"})
	nets, err := c.ListNetworks(context.Background(), "org1")
	require.NoError(t, err)
	require.Len(t, nets, 1)
	assert.Equal(t, "org1", nets[0].OrgID)
	assert.Equal(t, []string{"wireless"}, nets[0].ProductTypes)
}

func TestGetCategorizesRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL, APIKey: "test"})
	var out []interface{}
	err := c.Get(context.Background(), "/x", &out)
	require.Error(t, err)
	var apiErr *domain.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, domain.ErrAPIRateLimit, apiErr.Category)
	assert.Equal(t, 7, apiErr.RetryAfter)
}

func TestGetCategorizesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL, APIKey: "test"})
	var out []interface{}
	err := c.Get(context.Background(), "/x", &out)
	require.Error(t, err)
	var apiErr *domain.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, domain.ErrAPIServerError, apiErr.Category)
}

type fakeCounter struct {
	incs [][]string
}

func (f *fakeCounter) Inc(delta float64, labels ...string) {
	f.incs = append(f.incs, append([]string{}, labels...))
}

type fakeProvider struct {
	counter *fakeCounter
}

func (p *fakeProvider) NewCounter(metrics.CounterOpts) metrics.Counter       { return p.counter }
func (p *fakeProvider) NewGauge(metrics.GaugeOpts) metrics.Gauge             { return nil }
func (p *fakeProvider) NewHistogram(metrics.HistogramOpts) metrics.Histogram { return nil }
func (p *fakeProvider) NewTimer(metrics.HistogramOpts) func() metrics.Timer {
	return func() metrics.Timer { return nil }
}
func (p *fakeProvider) Health(context.Context) error { return nil }

func TestGetRecordsAPICallAttributedToCollector(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	counter := &fakeCounter{}
	c := New(Options{BaseURL: srv.URL, APIKey: "test", Metrics: &fakeProvider{counter: counter}})

	ctx := logging.WithCorrelation(context.Background(), logging.Correlation{})
	ctx = logging.WithCollector(ctx, "device.wireless")

	var out []interface{}
	require.NoError(t, c.Get(ctx, "/devices/Q2AP-0001/wireless/status?timespan=3600", &out))

	require.Len(t, counter.incs, 1)
	assert.Equal(t, []string{"device.wireless", "/devices/Q2AP-0001/wireless/status"}, counter.incs[0])
}

func TestEndpointLabelStripsQueryString(t *testing.T) {
	assert.Equal(t, "/organizations/org1/devices", endpointLabel("/organizations/org1/devices?productTypes[]=wireless&productTypes[]=switch"))
	assert.Equal(t, "/organizations", endpointLabel("/organizations"))
}

func TestGetRejectsUnexpectedShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`"just a string"`))
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL, APIKey: "test"})
	var out []interface{}
	err := c.Get(context.Background(), "/x", &out)
	require.Error(t, err)
	var apiErr *domain.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, domain.ErrParsing, apiErr.Category)
}
