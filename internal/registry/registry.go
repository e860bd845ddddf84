// Package registry implements the Metric Registry: the typed metric factory
// and label-bound sample store with TTL-based expiration that sits between
// collectors and the scrape handler. It is backed by a Prometheus registry
// served through its own promhttp handler, but it owns series-level
// bookkeeping (recorded_at, TTL, counter
// monotonicity) that a bare Prometheus vector does not provide.
package registry

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"

	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/domain"
	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/telemetry/logging"
)

// Registry is the Metric Registry (C5). Zero value is not usable; construct
// with New.
type Registry struct {
	mu          sync.RWMutex
	promReg     *prom.Registry
	defs        map[string]domain.MetricDefinition
	counters    map[string]*prom.CounterVec
	gauges      map[string]*prom.GaugeVec
	histograms  map[string]*prom.HistogramVec
	infos       map[string]*prom.GaugeVec
	series      map[string]*seriesMeta // key: metricName + "\x00" + joined label values
	ttlMult     float64
	log         logging.Logger
	handler     http.Handler
	sweepTicker *time.Ticker
	stopSweep   chan struct{}
}

type seriesMeta struct {
	metric      string
	labelValues []string
	recordedAt  time.Time
	ttl         time.Duration
	lastValue   float64 // counters only, for monotonicity enforcement
	isCounter   bool
}

func (s *seriesMeta) expired(now time.Time) bool {
	return now.Sub(s.recordedAt) > s.ttl
}

// Options configures a new Registry.
type Options struct {
	TTLMultiplier float64 // default 2.0, matches monitoring.metric_ttl_multiplier
	Logger        logging.Logger
	SweepInterval time.Duration // default 30s
}

// New constructs an empty Registry.
func New(opts Options) *Registry {
	mult := opts.TTLMultiplier
	if mult <= 0 {
		mult = 2.0
	}
	sweep := opts.SweepInterval
	if sweep <= 0 {
		sweep = 30 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = logging.New(nil)
	}
	reg := prom.NewRegistry()
	r := &Registry{
		promReg:    reg,
		defs:       make(map[string]domain.MetricDefinition),
		counters:   make(map[string]*prom.CounterVec),
		gauges:     make(map[string]*prom.GaugeVec),
		histograms: make(map[string]*prom.HistogramVec),
		infos:      make(map[string]*prom.GaugeVec),
		series:     make(map[string]*seriesMeta),
		ttlMult:    mult,
		log:        log,
		stopSweep:  make(chan struct{}),
	}
	promHandler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	r.handler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		// Expiration must hold for every scrape, not only after the next
		// sweepLoop tick fires, so a series past its TTL is evicted here
		// before Gather runs rather than left to the periodic sweep.
		r.evictExpired(time.Now())
		promHandler.ServeHTTP(w, req)
	})
	r.sweepTicker = time.NewTicker(sweep)
	go r.sweepLoop()
	return r
}

// Handler returns the http.Handler serving /metrics. Every request evicts
// series past their TTL before rendering, so the scrape-time invariant holds
// independent of the background sweep's cadence.
func (r *Registry) Handler() http.Handler { return r.handler }

// Close stops the background sweep goroutine.
func (r *Registry) Close() {
	r.sweepTicker.Stop()
	close(r.stopSweep)
}

// Define registers a metric definition. Calling Define twice for the same
// name is a fatal startup error per the definition-phase contract.
func (r *Registry) Define(def domain.MetricDefinition) error {
	if err := validateName(def.Name); err != nil {
		return err
	}
	for _, l := range def.LabelSchema {
		if err := validateName(l); err != nil {
			return fmt.Errorf("metric %s: label %w", def.Name, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.defs[def.Name]; exists {
		return fmt.Errorf("metric %s already registered", def.Name)
	}
	r.defs[def.Name] = def

	switch def.Kind {
	case domain.KindCounter:
		vec := prom.NewCounterVec(prom.CounterOpts{Name: def.Name, Help: def.Help}, def.LabelSchema)
		if err := r.promReg.Register(vec); err != nil {
			return err
		}
		r.counters[def.Name] = vec
	case domain.KindGauge:
		vec := prom.NewGaugeVec(prom.GaugeOpts{Name: def.Name, Help: def.Help}, def.LabelSchema)
		if err := r.promReg.Register(vec); err != nil {
			return err
		}
		r.gauges[def.Name] = vec
	case domain.KindHistogram:
		buckets := def.Buckets
		if len(buckets) == 0 {
			buckets = domain.DefaultDurationBuckets
		}
		vec := prom.NewHistogramVec(prom.HistogramOpts{Name: def.Name, Help: def.Help, Buckets: buckets}, def.LabelSchema)
		if err := r.promReg.Register(vec); err != nil {
			return err
		}
		r.histograms[def.Name] = vec
	case domain.KindInfo:
		vec := prom.NewGaugeVec(prom.GaugeOpts{Name: def.Name, Help: def.Help}, def.LabelSchema)
		if err := r.promReg.Register(vec); err != nil {
			return err
		}
		r.infos[def.Name] = vec
	default:
		return fmt.Errorf("metric %s: unknown kind %q", def.Name, def.Kind)
	}
	return nil
}

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("name required")
	}
	for i, ch := range name {
		ok := (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_' || ch == ':' ||
			(i > 0 && ch >= '0' && ch <= '9')
		if !ok {
			return fmt.Errorf("invalid identifier %q", name)
		}
	}
	return nil
}

// checkSchema looks up name's definition and checks that labelValues holds
// exactly one value per declared label. Values are supplied positionally in
// LabelSchema order per the series-key contract; their content is not
// checked.
func (r *Registry) checkSchema(name string, labelValues []string) (domain.MetricDefinition, error) {
	r.mu.RLock()
	def, ok := r.defs[name]
	r.mu.RUnlock()
	if !ok {
		return def, fmt.Errorf("metric %s not registered", name)
	}
	if len(labelValues) != len(def.LabelSchema) {
		return def, fmt.Errorf("metric %s: expected %d label values, got %d", name, len(def.LabelSchema), len(labelValues))
	}
	return def, nil
}

func seriesKey(name string, labelValues []string) string {
	return name + "\x00" + strings.Join(labelValues, "\x00")
}

// touchSeries stamps/overwrites the series metadata for (name, labels) with
// recordedAt = now and ttl derived from the writer's tier period.
func (r *Registry) touchSeries(name string, labelValues []string, tierPeriod time.Duration, now time.Time, isCounter bool, value float64) {
	key := seriesKey(name, labelValues)
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.series[key]
	if !ok {
		m = &seriesMeta{metric: name, labelValues: append([]string{}, labelValues...), isCounter: isCounter}
		r.series[key] = m
	}
	m.recordedAt = now
	m.ttl = time.Duration(float64(tierPeriod) * r.ttlMult)
	if isCounter {
		m.lastValue = value
	}
}

// Set writes a Gauge sample.
func (r *Registry) Set(name string, labelValues []string, value float64, tierPeriod time.Duration) error {
	def, err := r.checkSchema(name, labelValues)
	if err != nil {
		return err
	}
	if def.Kind != domain.KindGauge {
		return fmt.Errorf("metric %s is not a gauge", name)
	}
	r.mu.RLock()
	vec := r.gauges[name]
	r.mu.RUnlock()
	vec.WithLabelValues(labelValues...).Set(value)
	r.touchSeries(name, labelValues, tierPeriod, time.Now(), false, value)
	return nil
}

// Inc increments a Counter by delta. Collectors deriving counters from
// upstream absolute snapshot values must translate to deltas before calling
// Inc; Inc never coerces a decreasing absolute value itself — see
// IncAbsolute for that translation helper.
func (r *Registry) Inc(name string, labelValues []string, delta float64, tierPeriod time.Duration) error {
	if delta < 0 {
		return fmt.Errorf("metric %s: counter increment must be non-negative, got %v", name, delta)
	}
	def, err := r.checkSchema(name, labelValues)
	if err != nil {
		return err
	}
	if def.Kind != domain.KindCounter {
		return fmt.Errorf("metric %s is not a counter", name)
	}
	r.mu.RLock()
	vec := r.counters[name]
	r.mu.RUnlock()
	vec.WithLabelValues(labelValues...).Add(delta)

	key := seriesKey(name, labelValues)
	r.mu.Lock()
	m, ok := r.series[key]
	if !ok {
		m = &seriesMeta{metric: name, labelValues: append([]string{}, labelValues...), isCounter: true}
		r.series[key] = m
	}
	m.lastValue += delta
	m.recordedAt = time.Now()
	m.ttl = time.Duration(float64(tierPeriod) * r.ttlMult)
	r.mu.Unlock()
	return nil
}

// IncAbsolute translates an upstream cumulative snapshot value into a
// monotonic counter increment. If absolute is less than the last recorded
// absolute value (an upstream reset), the Registry logs a warning, leaves
// the counter unchanged, and does not update recorded_at — per the
// counter-reset-rejection invariant.
func (r *Registry) IncAbsolute(name string, labelValues []string, absolute float64, tierPeriod time.Duration) error {
	key := seriesKey(name, labelValues)
	r.mu.RLock()
	m, seen := r.series[key]
	r.mu.RUnlock()
	if !seen {
		return r.Inc(name, labelValues, absolute, tierPeriod)
	}
	delta := absolute - m.lastValue
	if delta < 0 {
		r.log.WarnCtx(context.Background(), "counter reset rejected", "metric", name, "last", m.lastValue, "observed", absolute)
		return nil
	}
	return r.Inc(name, labelValues, delta, tierPeriod)
}

// Observe writes a Histogram sample.
func (r *Registry) Observe(name string, labelValues []string, value float64, tierPeriod time.Duration) error {
	def, err := r.checkSchema(name, labelValues)
	if err != nil {
		return err
	}
	if def.Kind != domain.KindHistogram {
		return fmt.Errorf("metric %s is not a histogram", name)
	}
	r.mu.RLock()
	vec := r.histograms[name]
	r.mu.RUnlock()
	vec.WithLabelValues(labelValues...).Observe(value)
	r.touchSeries(name, labelValues, tierPeriod, time.Now(), false, value)
	return nil
}

// SetInfo writes an Info sample; value is always 1, state is encoded in
// labels.
func (r *Registry) SetInfo(name string, labelValues []string, tierPeriod time.Duration) error {
	def, err := r.checkSchema(name, labelValues)
	if err != nil {
		return err
	}
	if def.Kind != domain.KindInfo {
		return fmt.Errorf("metric %s is not an info metric", name)
	}
	r.mu.RLock()
	vec := r.infos[name]
	r.mu.RUnlock()
	vec.WithLabelValues(labelValues...).Set(1)
	r.touchSeries(name, labelValues, tierPeriod, time.Now(), false, 1)
	return nil
}

// SeriesCount returns the number of live (non-expired) series tracked for
// name, used by the cardinality monitor.
func (r *Registry) SeriesCount(name string) int {
	now := time.Now()
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, m := range r.series {
		if m.metric == name && !m.expired(now) {
			n++
		}
	}
	return n
}

// AllSeriesCounts returns a point-in-time count of live series per metric
// name.
func (r *Registry) AllSeriesCounts() map[string]int {
	now := time.Now()
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]int, len(r.defs))
	for name := range r.defs {
		out[name] = 0
	}
	for _, m := range r.series {
		if !m.expired(now) {
			out[m.metric]++
		}
	}
	return out
}

// LabelSchemas returns the declared label schema per registered metric, used
// by the cardinality monitor's per-label aggregation.
func (r *Registry) LabelSchemas() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string][]string, len(r.defs))
	for name, def := range r.defs {
		out[name] = append([]string{}, def.LabelSchema...)
	}
	return out
}

// Sample is one exposed series, used by the secondary exporter to mirror
// the scrape surface into a second sink without depending on this
// package's internal bookkeeping.
type Sample struct {
	Name        string
	Kind        domain.MetricKind
	LabelValues []string // ordered per the metric's declared LabelSchema
	Value       float64
}

// Snapshot gathers the same underlying Prometheus registry the scrape
// handler exposes and flattens it into Samples. It evicts expired series
// first, the same way Handler() does, so the secondary exporter never reads
// a series past its TTL regardless of when the background sweep last ran.
func (r *Registry) Snapshot() ([]Sample, error) {
	r.evictExpired(time.Now())
	families, err := r.promReg.Gather()
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	defs := make(map[string]domain.MetricDefinition, len(r.defs))
	for k, v := range r.defs {
		defs[k] = v
	}
	r.mu.RUnlock()

	var out []Sample
	for _, fam := range families {
		def, ok := defs[fam.GetName()]
		if !ok {
			continue
		}
		for _, m := range fam.GetMetric() {
			labelByName := make(map[string]string, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				labelByName[lp.GetName()] = lp.GetValue()
			}
			labelValues := make([]string, len(def.LabelSchema))
			for i, name := range def.LabelSchema {
				labelValues[i] = labelByName[name]
			}
			value, ok := sampleValue(def.Kind, m)
			if !ok {
				continue
			}
			out = append(out, Sample{Name: fam.GetName(), Kind: def.Kind, LabelValues: labelValues, Value: value})
		}
	}
	return out, nil
}

func sampleValue(kind domain.MetricKind, m *dto.Metric) (float64, bool) {
	switch kind {
	case domain.KindCounter:
		if c := m.GetCounter(); c != nil {
			return c.GetValue(), true
		}
	case domain.KindGauge, domain.KindInfo:
		if g := m.GetGauge(); g != nil {
			return g.GetValue(), true
		}
	case domain.KindHistogram:
		if h := m.GetHistogram(); h != nil {
			if h.GetSampleCount() == 0 {
				return 0, false
			}
			return h.GetSampleSum() / float64(h.GetSampleCount()), true
		}
	}
	return 0, false
}

// sweepLoop evicts expired series on a ticker, bounding memory growth
// independent of scrape or write traffic.
func (r *Registry) sweepLoop() {
	for {
		select {
		case <-r.sweepTicker.C:
			r.evictExpired(time.Now())
		case <-r.stopSweep:
			return
		}
	}
}

// evictExpired removes bookkeeping and the underlying Prometheus series for
// every sample older than its TTL as of now. Prometheus vector entries are
// deleted so a subsequent scrape omits them per the expiration contract.
func (r *Registry) evictExpired(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, m := range r.series {
		if !m.expired(now) {
			continue
		}
		delete(r.series, key)
		if vec, ok := r.gauges[m.metric]; ok {
			vec.DeleteLabelValues(m.labelValues...)
		}
		if vec, ok := r.counters[m.metric]; ok {
			vec.DeleteLabelValues(m.labelValues...)
		}
		if vec, ok := r.histograms[m.metric]; ok {
			vec.DeleteLabelValues(m.labelValues...)
		}
		if vec, ok := r.infos[m.metric]; ok {
			vec.DeleteLabelValues(m.labelValues...)
		}
	}
}
