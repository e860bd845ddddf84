// Package secondaryexport implements the Secondary Exporter (C11): an
// optional, passive mirror of the Metric Registry's scrape surface into a
// second sink via OpenTelemetry. It never writes to the Registry and holds
// no special privilege over the scrape path — disabling it changes nothing
// about what /metrics serves.
package secondaryexport

import (
	"context"
	"strings"
	"time"

	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/domain"
	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/registry"
	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/telemetry/logging"
	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/telemetry/metrics"
)

// Source is the subset of the Metric Registry the exporter depends on.
type Source interface {
	Snapshot() ([]registry.Sample, error)
}

// Options configures an Exporter.
type Options struct {
	Source   Source
	Provider metrics.Provider
	Interval time.Duration // default 60s
	Logger   logging.Logger
}

// Exporter periodically reads a Registry snapshot and mirrors each sample
// into its configured metrics.Provider.
type Exporter struct {
	src      Source
	provider metrics.Provider
	interval time.Duration
	log      logging.Logger

	counters     map[string]metrics.Counter
	gauges       map[string]metrics.Gauge
	histograms   map[string]metrics.Histogram
	lastCounters map[string]float64 // series key -> last mirrored absolute value
}

// New constructs an Exporter. It defines no instruments until the first
// Run tick, since instrument label schemas are only known once a sample
// naming its labels has been observed.
func New(opts Options) *Exporter {
	interval := opts.Interval
	if interval <= 0 {
		interval = 60 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = logging.New(nil)
	}
	return &Exporter{
		src:          opts.Source,
		provider:     opts.Provider,
		interval:     interval,
		log:          log,
		counters:     make(map[string]metrics.Counter),
		gauges:       make(map[string]metrics.Gauge),
		histograms:   make(map[string]metrics.Histogram),
		lastCounters: make(map[string]float64),
	}
}

// Run mirrors snapshots on a fixed interval until ctx is cancelled.
func (e *Exporter) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.mirrorOnce(ctx)
		}
	}
}

func (e *Exporter) mirrorOnce(ctx context.Context) {
	samples, err := e.src.Snapshot()
	if err != nil {
		e.log.WarnCtx(ctx, "secondary exporter snapshot failed", "error", err.Error())
		return
	}
	for _, s := range samples {
		e.mirror(s)
	}
}

func (e *Exporter) mirror(s registry.Sample) {
	switch s.Kind {
	case domain.KindCounter:
		key := s.Name + "\x00" + strings.Join(s.LabelValues, "\x00")
		delta := s.Value - e.lastCounters[key]
		e.lastCounters[key] = s.Value
		if delta > 0 {
			e.counterFor(s.Name).Inc(delta, s.LabelValues...)
		}
	case domain.KindGauge, domain.KindInfo:
		e.gaugeFor(s.Name).Set(s.Value, s.LabelValues...)
	case domain.KindHistogram:
		e.histogramFor(s.Name).Observe(s.Value, s.LabelValues...)
	}
}

func (e *Exporter) counterFor(name string) metrics.Counter {
	if c, ok := e.counters[name]; ok {
		return c
	}
	c := e.provider.NewCounter(metrics.CounterOpts{CommonOpts: metrics.CommonOpts{Name: name}})
	e.counters[name] = c
	return c
}

func (e *Exporter) gaugeFor(name string) metrics.Gauge {
	if g, ok := e.gauges[name]; ok {
		return g
	}
	g := e.provider.NewGauge(metrics.GaugeOpts{CommonOpts: metrics.CommonOpts{Name: name}})
	e.gauges[name] = g
	return g
}

func (e *Exporter) histogramFor(name string) metrics.Histogram {
	if h, ok := e.histograms[name]; ok {
		return h
	}
	h := e.provider.NewHistogram(metrics.HistogramOpts{CommonOpts: metrics.CommonOpts{Name: name}})
	e.histograms[name] = h
	return h
}
