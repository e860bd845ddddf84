// Package cardinality implements the Cardinality Monitor (C6): an on-demand,
// read-only observer of the Metric Registry's series counts that classifies
// metrics into normal/warning/critical bands and tracks growth rate over a
// rolling window of snapshots. It never deletes series — that is the
// Registry's TTL job.
package cardinality

import (
	"sync"
	"time"
)

// SeriesCounter is the subset of the Metric Registry the monitor depends on.
type SeriesCounter interface {
	AllSeriesCounts() map[string]int
	LabelSchemas() map[string][]string
}

// Thresholds holds the absolute per-metric series-count bands.
type Thresholds struct {
	Warning  int
	Critical int
}

// Classification is the health band a metric's series count falls into.
type Classification string

const (
	ClassNormal   Classification = "normal"
	ClassWarning  Classification = "warning"
	ClassCritical Classification = "critical"
)

// MetricSnapshot is one metric's row in a Snapshot.
type MetricSnapshot struct {
	Name           string
	SeriesCount    int
	Classification Classification
	GrowthRatePct  float64 // %/10m; zero if history is insufficient
}

// LabelSnapshot aggregates one label name's usage across every metric whose
// schema declares it.
type LabelSnapshot struct {
	Label        string
	TotalSeries  int
	MetricsUsing int
}

// Snapshot is the computed, point-in-time cardinality view. Banner rolls the
// per-metric classifications up into counts per band for the operator view.
type Snapshot struct {
	TotalSeries int
	PerMetric   map[string]MetricSnapshot
	PerLabel    map[string]LabelSnapshot
	Banner      map[Classification]int
	ComputedAt  time.Time
}

const historyWindow = 3 // minimum snapshots before a growth rate is reported

// Monitor computes Snapshots on demand, bounded by MinRecomputeInterval, and
// retains a rolling history of per-metric counts to derive growth rate.
type Monitor struct {
	mu                   sync.Mutex
	reg                  SeriesCounter
	thresholds           Thresholds
	minRecomputeInterval time.Duration

	lastComputed time.Time
	lastSnapshot Snapshot
	history      map[string][]historyPoint // metric -> ring of recent counts
}

type historyPoint struct {
	at    time.Time
	count int
}

// Options configures a new Monitor.
type Options struct {
	Thresholds           Thresholds
	MinRecomputeInterval time.Duration // default 30s
}

// New constructs a Monitor reading series counts from reg.
func New(reg SeriesCounter, opts Options) *Monitor {
	interval := opts.MinRecomputeInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	th := opts.Thresholds
	if th.Warning <= 0 {
		th.Warning = 1000
	}
	if th.Critical < th.Warning {
		th.Critical = 10000
	}
	return &Monitor{
		reg:                  reg,
		thresholds:           th,
		minRecomputeInterval: interval,
		history:              make(map[string][]historyPoint),
	}
}

// Snapshot returns the current cardinality view, recomputing only if at
// least MinRecomputeInterval has elapsed since the last computation;
// otherwise it returns the cached snapshot.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if !m.lastComputed.IsZero() && now.Sub(m.lastComputed) < m.minRecomputeInterval {
		return m.lastSnapshot
	}

	counts := m.reg.AllSeriesCounts()
	snap := Snapshot{
		PerMetric:  make(map[string]MetricSnapshot, len(counts)),
		Banner:     map[Classification]int{ClassNormal: 0, ClassWarning: 0, ClassCritical: 0},
		ComputedAt: now,
	}
	for name, count := range counts {
		snap.TotalSeries += count
		m.recordHistory(name, now, count)
		class := m.classify(count)
		snap.Banner[class]++
		snap.PerMetric[name] = MetricSnapshot{
			Name:           name,
			SeriesCount:    count,
			Classification: class,
			GrowthRatePct:  m.growthRate(name),
		}
	}
	snap.PerLabel = perLabel(counts, m.reg.LabelSchemas())

	m.lastComputed = now
	m.lastSnapshot = snap
	return snap
}

// perLabel folds per-metric series counts onto each label name appearing in
// a metric's declared schema: every series of a metric counts toward every
// label that metric declares.
func perLabel(counts map[string]int, schemas map[string][]string) map[string]LabelSnapshot {
	out := make(map[string]LabelSnapshot)
	for metric, labels := range schemas {
		for _, label := range labels {
			ls := out[label]
			ls.Label = label
			ls.TotalSeries += counts[metric]
			ls.MetricsUsing++
			out[label] = ls
		}
	}
	return out
}

func (m *Monitor) classify(count int) Classification {
	switch {
	case count >= m.thresholds.Critical:
		return ClassCritical
	case count >= m.thresholds.Warning:
		return ClassWarning
	default:
		return ClassNormal
	}
}

func (m *Monitor) recordHistory(name string, now time.Time, count int) {
	h := append(m.history[name], historyPoint{at: now, count: count})
	if len(h) > historyWindow {
		h = h[len(h)-historyWindow:]
	}
	m.history[name] = h
}

// growthRate computes %/10m from the oldest and newest points in the
// retained window; it is zero (undefined) until at least historyWindow
// points have been recorded, so a single noisy sample never reports a rate.
func (m *Monitor) growthRate(name string) float64 {
	h := m.history[name]
	if len(h) < historyWindow {
		return 0
	}
	oldest, newest := h[0], h[len(h)-1]
	if oldest.count == 0 {
		return 0
	}
	elapsed := newest.at.Sub(oldest.at)
	if elapsed <= 0 {
		return 0
	}
	delta := float64(newest.count-oldest.count) / float64(oldest.count) * 100
	// normalize to a 10-minute window
	return delta * (10 * time.Minute).Seconds() / elapsed.Seconds()
}
