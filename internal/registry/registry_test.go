package registry

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/domain"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := New(Options{SweepInterval: time.Hour})
	t.Cleanup(r.Close)
	return r
}

func TestDefineRejectsDuplicate(t *testing.T) {
	r := newTestRegistry(t)
	def := domain.MetricDefinition{Name: "device_up", Kind: domain.KindGauge, LabelSchema: []string{"serial"}}
	require.NoError(t, r.Define(def))
	err := r.Define(def)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestSetRejectsSchemaMismatch(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.Define(domain.MetricDefinition{Name: "device_up", Kind: domain.KindGauge, LabelSchema: []string{"serial", "org_id"}}))
	err := r.Set("device_up", []string{"ABC123"}, 1, time.Minute)
	require.Error(t, err)
}

func TestCounterRejectsDecrease(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.Define(domain.MetricDefinition{Name: "bytes_total", Kind: domain.KindCounter, LabelSchema: []string{"serial"}}))

	require.NoError(t, r.IncAbsolute("bytes_total", []string{"S1"}, 1000, time.Minute))
	require.NoError(t, r.IncAbsolute("bytes_total", []string{"S1"}, 900, time.Minute)) // reset, rejected
	require.NoError(t, r.IncAbsolute("bytes_total", []string{"S1"}, 1100, time.Minute))

	key := seriesKey("bytes_total", []string{"S1"})
	r.mu.RLock()
	m := r.series[key]
	r.mu.RUnlock()
	require.NotNil(t, m)
	assert.Equal(t, float64(1100), m.lastValue)
}

func TestSeriesCountExcludesExpired(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.Define(domain.MetricDefinition{Name: "device_up", Kind: domain.KindGauge, LabelSchema: []string{"serial"}}))
	require.NoError(t, r.Set("device_up", []string{"S1"}, 1, time.Minute))
	assert.Equal(t, 1, r.SeriesCount("device_up"))

	key := seriesKey("device_up", []string{"S1"})
	r.mu.Lock()
	r.series[key].recordedAt = time.Now().Add(-time.Hour)
	r.series[key].ttl = time.Minute
	r.mu.Unlock()

	assert.Equal(t, 0, r.SeriesCount("device_up"))
}

func TestEvictExpiredRemovesBookkeeping(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.Define(domain.MetricDefinition{Name: "device_up", Kind: domain.KindGauge, LabelSchema: []string{"serial"}}))
	require.NoError(t, r.Set("device_up", []string{"S1"}, 1, time.Minute))

	key := seriesKey("device_up", []string{"S1"})
	r.mu.Lock()
	r.series[key].recordedAt = time.Now().Add(-time.Hour)
	r.series[key].ttl = time.Minute
	r.mu.Unlock()

	r.evictExpired(time.Now())

	r.mu.RLock()
	_, exists := r.series[key]
	r.mu.RUnlock()
	assert.False(t, exists)
}

func TestAllSeriesCountsEmptyRegistry(t *testing.T) {
	r := newTestRegistry(t)
	counts := r.AllSeriesCounts()
	assert.Empty(t, counts)
}

func TestHandlerOmitsExpiredSeriesBeforeNextSweep(t *testing.T) {
	r := newTestRegistry(t) // SweepInterval: time.Hour, so the background sweep never fires here
	require.NoError(t, r.Define(domain.MetricDefinition{Name: "device_up", Kind: domain.KindGauge, LabelSchema: []string{"serial"}}))
	require.NoError(t, r.Set("device_up", []string{"S1"}, 1, time.Minute))
	require.NoError(t, r.Set("device_up", []string{"S2"}, 1, time.Minute))

	key := seriesKey("device_up", []string{"S1"})
	r.mu.Lock()
	r.series[key].recordedAt = time.Now().Add(-time.Hour)
	r.series[key].ttl = time.Minute
	r.mu.Unlock()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	assert.NotContains(t, body, `serial="S1"`)
	assert.Contains(t, body, `serial="S2"`)
}

func TestSnapshotOmitsExpiredSeriesBeforeNextSweep(t *testing.T) {
	r := newTestRegistry(t) // SweepInterval: time.Hour, so the background sweep never fires here
	require.NoError(t, r.Define(domain.MetricDefinition{Name: "device_up", Kind: domain.KindGauge, LabelSchema: []string{"serial"}}))
	require.NoError(t, r.Set("device_up", []string{"S1"}, 1, time.Minute))
	require.NoError(t, r.Set("device_up", []string{"S2"}, 1, time.Minute))

	key := seriesKey("device_up", []string{"S1"})
	r.mu.Lock()
	r.series[key].recordedAt = time.Now().Add(-time.Hour)
	r.series[key].ttl = time.Minute
	r.mu.Unlock()

	samples, err := r.Snapshot()
	require.NoError(t, err)

	var serials []string
	for _, s := range samples {
		if s.Name == "device_up" {
			serials = append(serials, s.LabelValues[0])
		}
	}
	assert.Equal(t, []string{"S2"}, serials)
}

func TestInfoMetricAlwaysValueOne(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.Define(domain.MetricDefinition{Name: "build_info", Kind: domain.KindInfo, LabelSchema: []string{"version"}}))
	require.NoError(t, r.SetInfo("build_info", []string{"1.0.0"}, time.Minute))
	assert.Equal(t, 1, r.SeriesCount("build_info"))

	samples, err := r.Snapshot()
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, float64(1), samples[0].Value)
}
