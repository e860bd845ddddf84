package domain

// MetricKind is the closed set of metric shapes the Registry understands.
type MetricKind string

const (
	KindGauge     MetricKind = "gauge"
	KindCounter   MetricKind = "counter"
	KindHistogram MetricKind = "histogram"
	KindInfo      MetricKind = "info"
)

// DefaultDurationBuckets is the geometric bucket spec used for collector
// duration histograms unless a collector declares its own.
var DefaultDurationBuckets = []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300}

// MetricDefinition is registered once at startup and is immutable afterward.
type MetricDefinition struct {
	Name        string
	Kind        MetricKind
	Help        string
	LabelSchema []string
	Buckets     []float64 // only meaningful for Histogram
}

// Outcome is the result status a collector's collect() call returns.
type Outcome string

const (
	OutcomeOK      Outcome = "ok"
	OutcomePartial Outcome = "partial"
	OutcomeFailed  Outcome = "failed"
)

// CollectResult is the Go realization of collect(cycle_ctx) -> Result.
type CollectResult struct {
	Outcome        Outcome
	Errors         []ErrorRecord
	ItemsProcessed int
}

// Merge folds other into r: the worse outcome wins (Failed > Partial > OK),
// errors are appended, and item counts sum. Used by coordinator collectors
// combining sub-collector results.
func (r CollectResult) Merge(other CollectResult) CollectResult {
	out := CollectResult{
		Outcome:        worstOutcome(r.Outcome, other.Outcome),
		Errors:         append(append([]ErrorRecord{}, r.Errors...), other.Errors...),
		ItemsProcessed: r.ItemsProcessed + other.ItemsProcessed,
	}
	return out
}

func worstOutcome(a, b Outcome) Outcome {
	rank := map[Outcome]int{OutcomeOK: 0, OutcomePartial: 1, OutcomeFailed: 2}
	if rank[a] >= rank[b] {
		return a
	}
	return b
}
