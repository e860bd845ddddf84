// Package policy centralizes runtime-tunable telemetry knobs shared by the
// health evaluator, the cardinality monitor, and the event bus. A single
// immutable snapshot is swapped atomically by callers to avoid locks on hot
// paths; all durations are expected to be positive, zero values fall back to
// the defaults established in Default().
package policy

import "time"

// TelemetryPolicy groups the tunables for the three cross-cutting telemetry
// concerns of the exporter.
type TelemetryPolicy struct {
	Health      HealthPolicy
	Cardinality CardinalityPolicy
	Events      EventBusPolicy
}

// HealthPolicy governs the health evaluator (probe TTL) and the error
// accounting consumed from it (consecutive-failure thresholds per collector).
type HealthPolicy struct {
	ProbeTTL time.Duration

	// MaxConsecutiveFailures is the number of consecutive failed runs after
	// which a collector is reported unhealthy rather than degraded.
	MaxConsecutiveFailures int

	// DegradedAfterFailures is the number of consecutive failed runs after
	// which a collector moves from healthy to degraded.
	DegradedAfterFailures int
}

// CardinalityPolicy governs the series-count thresholds used by the
// cardinality monitor to classify a metric as warning or critical, and the
// multiplier applied to a collector's tier period to derive its metric TTL.
type CardinalityPolicy struct {
	WarningThreshold  int
	CriticalThreshold int
	TTLMultiplier     float64
}

// EventBusPolicy holds a per-subscriber buffer size for the operational event
// bus. The bus does not read it: Subscribe sizes each buffer from its own
// argument, 64 when that is not positive.
type EventBusPolicy struct {
	MaxSubscriberBuffer int
}

// Default returns the out-of-the-box TelemetryPolicy. Values mirror the
// defaults documented for the cardinality monitor and health evaluator;
// override via configuration rather than editing this function.
func Default() TelemetryPolicy {
	return TelemetryPolicy{
		Health: HealthPolicy{
			ProbeTTL:               2 * time.Second,
			DegradedAfterFailures:  3,
			MaxConsecutiveFailures: 5,
		},
		Cardinality: CardinalityPolicy{
			WarningThreshold:  1000,
			CriticalThreshold: 10000,
			TTLMultiplier:     2.0,
		},
		Events: EventBusPolicy{MaxSubscriberBuffer: 1024},
	}
}

// Normalize returns a cleaned copy of p with invalid or zero fields replaced
// by their defaults; it never mutates p.
func (p TelemetryPolicy) Normalize() TelemetryPolicy {
	c := p
	if c.Health.ProbeTTL <= 0 {
		c.Health.ProbeTTL = 2 * time.Second
	}
	if c.Health.DegradedAfterFailures <= 0 {
		c.Health.DegradedAfterFailures = 3
	}
	if c.Health.MaxConsecutiveFailures <= 0 {
		c.Health.MaxConsecutiveFailures = 5
	}
	if c.Health.MaxConsecutiveFailures < c.Health.DegradedAfterFailures {
		c.Health.MaxConsecutiveFailures = c.Health.DegradedAfterFailures
	}
	if c.Cardinality.WarningThreshold <= 0 {
		c.Cardinality.WarningThreshold = 1000
	}
	if c.Cardinality.CriticalThreshold <= 0 {
		c.Cardinality.CriticalThreshold = 10000
	}
	if c.Cardinality.CriticalThreshold < c.Cardinality.WarningThreshold {
		c.Cardinality.CriticalThreshold = c.Cardinality.WarningThreshold
	}
	if c.Cardinality.TTLMultiplier <= 0 {
		c.Cardinality.TTLMultiplier = 2.0
	}
	if c.Events.MaxSubscriberBuffer <= 0 {
		c.Events.MaxSubscriberBuffer = 1024
	}
	return c
}
