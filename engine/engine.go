// Package engine composes the exporter's tiers into a single runnable
// process: configuration, the Meraki API client behind its concurrency
// limiter, the collector catalog, the metric registry, the scheduler, health
// and cardinality accounting, the operational event bus, the HTTP surface,
// and the optional secondary exporter. Construction wires every piece once,
// at startup; nothing here is rebuilt for the life of the process except the
// telemetry policy, which callers may swap at runtime.
package engine

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/cardinality"
	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/collector"
	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/collectors"
	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/config"
	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/domain"
	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/health"
	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/inventory"
	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/merakiclient"
	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/pipeline"
	metricreg "github.com/rknightion/meraki-dashboard-exporter-sub001/internal/registry"
	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/scheduler"
	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/secondaryexport"
	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/server"
	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/telemetry/events"
	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/telemetry/logging"
	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/telemetry/metrics"
	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/telemetry/policy"
)

// Option customizes Engine construction.
type Option func(*Engine)

// WithLogger overrides the default slog-backed logger every subsystem is
// constructed with.
func WithLogger(log logging.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// Engine is the assembled exporter process. Construct with New and run with
// Run; Run shuts the HTTP server down when its context is cancelled.
type Engine struct {
	cfg *config.Config
	log logging.Logger

	client          *merakiclient.HTTPClient
	collectorReg    *collector.Registry
	metrics         *metricreg.Registry
	scheduler       *scheduler.Scheduler
	healthEval      *health.Evaluator
	cardinalityMon  *cardinality.Monitor
	collectorStates map[string]*health.CollectorState
	eventBus        events.Bus
	internalMetrics *metrics.PrometheusProvider
	secondaryExp    *secondaryexport.Exporter
	httpServer      *http.Server

	collectorDuration metrics.Histogram
	collectorErrors   metrics.Counter
	lastSuccessGauge  metrics.Gauge
	failStreakGauge   metrics.Gauge
	collectorUpGauge  metrics.Gauge

	policyVal atomic.Value // policy.TelemetryPolicy
}

// New wires every subsystem per cfg. Construction fails only if the metric
// catalog or scheduler registration is malformed; both are program bugs, not
// runtime conditions.
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	e := &Engine{cfg: cfg, log: logging.New(nil)}
	for _, opt := range opts {
		opt(e)
	}

	pol := policy.Default().Normalize()
	pol.Health.MaxConsecutiveFailures = cfg.Monitoring.MaxConsecutiveFailures
	pol.Cardinality.WarningThreshold = cfg.Monitoring.Cardinality.Warning
	pol.Cardinality.CriticalThreshold = cfg.Monitoring.Cardinality.Critical
	pol.Cardinality.TTLMultiplier = cfg.Monitoring.MetricTTLMultiplier
	pol = pol.Normalize()
	e.policyVal.Store(pol)

	e.internalMetrics = metrics.NewPrometheusProvider(metrics.PrometheusProviderOptions{Logger: e.log})
	e.eventBus = events.NewBus(e.internalMetrics)

	e.collectorDuration = e.internalMetrics.NewHistogram(metrics.HistogramOpts{
		CommonOpts: metrics.CommonOpts{
			Namespace: "meraki", Subsystem: "exporter",
			Name: "collector_duration_seconds",
			Help: "Wall-clock duration of one collector run within a cycle.",
			Labels: []string{"collector", "tier"},
		},
		Buckets: domain.DefaultDurationBuckets,
	})
	e.collectorErrors = e.internalMetrics.NewCounter(metrics.CounterOpts{CommonOpts: metrics.CommonOpts{
		Namespace: "meraki", Subsystem: "exporter",
		Name: "collector_errors_total",
		Help: "Collector errors by taxonomy category.",
		Labels: []string{"collector", "category"},
	}})
	e.lastSuccessGauge = e.internalMetrics.NewGauge(metrics.GaugeOpts{CommonOpts: metrics.CommonOpts{
		Namespace: "meraki", Subsystem: "exporter",
		Name: "collector_last_success_timestamp_seconds",
		Help: "Unix time of the collector's most recent successful or partial cycle.",
		Labels: []string{"collector"},
	}})
	e.failStreakGauge = e.internalMetrics.NewGauge(metrics.GaugeOpts{CommonOpts: metrics.CommonOpts{
		Namespace: "meraki", Subsystem: "exporter",
		Name: "collector_consecutive_failures",
		Help: "Current run of consecutive failed cycles for the collector.",
		Labels: []string{"collector"},
	}})
	e.collectorUpGauge = e.internalMetrics.NewGauge(metrics.GaugeOpts{CommonOpts: metrics.CommonOpts{
		Namespace: "meraki", Subsystem: "exporter",
		Name: "collector_up",
		Help: "1 if the collector has succeeded within its staleness window, 0 otherwise.",
		Labels: []string{"collector"},
	}})

	limiter := pipeline.NewLimiter(pipeline.LimiterOptions{
		ConcurrencyLimit:   cfg.API.ConcurrencyLimit,
		MaxRetries:         cfg.API.MaxRetries,
		RateLimitRetryWait: cfg.API.RateLimitRetryWait,
	})
	e.client = merakiclient.New(merakiclient.Options{
		BaseURL: cfg.API.BaseURL,
		APIKey:  cfg.API.Key,
		Timeout: cfg.API.Timeout,
		Limiter: limiter,
		Metrics: e.internalMetrics,
	})

	e.metrics = metricreg.New(metricreg.Options{
		TTLMultiplier: pol.Cardinality.TTLMultiplier,
		Logger:        e.log,
	})
	if err := collectors.RegisterCatalog(e.metrics); err != nil {
		return nil, fmt.Errorf("registering metric catalog: %w", err)
	}

	e.collectorReg = collector.NewRegistry()
	for _, reg := range []struct {
		name string
		impl collector.Collector
	}{
		{"organization", collectors.NewOrganizationCollector()},
		{"network", collectors.NewNetworkCollector()},
		{"device", collectors.NewDeviceCollector()},
	} {
		if err := e.collectorReg.Register(reg.impl, cfg.Collectors.Enables(reg.name)); err != nil {
			return nil, fmt.Errorf("registering collector %s: %w", reg.name, err)
		}
	}

	e.healthEval = health.NewEvaluator(pol.Health.ProbeTTL)
	e.collectorStates = make(map[string]*health.CollectorState)
	for _, desc := range e.collectorReg.All() {
		st := health.NewCollectorState(desc.Name, pol.Health.DegradedAfterFailures, pol.Health.MaxConsecutiveFailures)
		e.collectorStates[desc.Name] = st
		e.healthEval.Register(health.ProbeFunc(st.Probe))
	}

	e.cardinalityMon = cardinality.New(e.metrics, cardinality.Options{
		Thresholds: cardinality.Thresholds{
			Warning:  pol.Cardinality.WarningThreshold,
			Critical: pol.Cardinality.CriticalThreshold,
		},
	})

	sched, err := scheduler.New(scheduler.Options{
		Collectors:       e.collectorReg,
		Metrics:          e.metrics,
		Client:           e.client,
		Periods:          cfg.Intervals.Periods(),
		CollectorTimeout: cfg.Collectors.Timeout,
		BatchSize:        cfg.API.BatchSize,
		BatchDelay:       cfg.API.BatchDelay,
		Logger:           e.log,
		OnCycleComplete:  e.onCycleComplete,
	})
	if err != nil {
		return nil, fmt.Errorf("constructing scheduler: %w", err)
	}
	e.scheduler = sched

	if cfg.Monitoring.SecondaryExporter.Enabled {
		otelProvider := metrics.NewOTelProvider(metrics.OTelProviderOptions{ServiceName: "meraki-dashboard-exporter"})
		e.secondaryExp = secondaryexport.New(secondaryexport.Options{
			Source:   e.metrics,
			Provider: otelProvider,
			Logger:   e.log,
		})
	}

	e.httpServer = &http.Server{
		Addr: fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: server.New(server.Options{
			Metrics:         e.metrics,
			Health:          e.healthEval,
			Cardinality:     e.cardinalityMon,
			Scheduler:       e.scheduler,
			InternalMetrics: e.internalMetrics.MetricsHandler(),
		}),
	}

	return e, nil
}

// NewCache builds a fresh per-cycle inventory cache bound to the engine's
// client. Exposed for callers that want a collector cycle outside the
// scheduler (e.g. a one-shot CLI probe); the scheduler builds its own per
// tick.
func (e *Engine) NewCache() *inventory.Cache { return inventory.New(e.client) }

// Policy returns the currently active telemetry policy.
func (e *Engine) Policy() policy.TelemetryPolicy {
	return e.policyVal.Load().(policy.TelemetryPolicy)
}

// UpdatePolicy swaps the active telemetry policy. Its TTL multiplier is used
// for collector staleness from the next completed cycle on. The health
// evaluator's TTL, the cardinality monitor's thresholds, and the
// per-collector failure thresholds are captured at construction and do not
// change.
func (e *Engine) UpdatePolicy(p policy.TelemetryPolicy) {
	e.policyVal.Store(p.Normalize())
}

// Events returns the operational event bus other processes can subscribe to
// for collector failures and cycle completions.
func (e *Engine) Events() events.Bus { return e.eventBus }

// onCycleComplete is the Scheduler's OnCycleComplete hook: it rolls outcomes
// into per-collector health state, records the per-collector accounting
// signals (duration, categorized errors, last success, failure streak,
// staleness), and publishes operational events, without the Scheduler
// needing to know any of those concerns exist.
func (e *Engine) onCycleComplete(tier domain.Tier, cycleID string, outcomes []pipeline.CollectorOutcome) {
	now := time.Now()
	period := e.cfg.Intervals.Periods().Period(tier)
	staleMult := e.Policy().Cardinality.TTLMultiplier
	for _, oc := range outcomes {
		e.collectorDuration.Observe(oc.Duration.Seconds(), oc.Name, tier.String())
		for _, rec := range oc.Result.Errors {
			e.collectorErrors.Inc(1, oc.Name, string(rec.Category))
		}
		if st, ok := e.collectorStates[oc.Name]; ok {
			crossed := st.RecordOutcome(oc.Result.Outcome, oc.Result.Errors, now)
			if crossed {
				e.log.ErrorCtx(context.Background(), "collector failure streak crossed alert threshold",
					"collector", oc.Name, "tier", tier.String(),
					"consecutive_failures", st.ConsecutiveFailures())
			}
			if last := st.LastSuccess(); !last.IsZero() {
				e.lastSuccessGauge.Set(float64(last.Unix()), oc.Name)
			}
			e.failStreakGauge.Set(float64(st.ConsecutiveFailures()), oc.Name)
			up := 1.0
			if st.Stale(now, period, staleMult) {
				up = 0
			}
			e.collectorUpGauge.Set(up, oc.Name)
		}
		if oc.Result.Outcome == domain.OutcomeFailed {
			_ = e.eventBus.Publish(events.Event{
				Category:  events.CategoryError,
				Type:      "collector_failed",
				Severity:  "error",
				Tier:      tier.String(),
				Collector: oc.Name,
				Fields:    map[string]interface{}{"cycle_id": cycleID},
			})
		}
	}
	_ = e.eventBus.Publish(events.Event{
		Category: events.CategoryScheduler,
		Type:     "cycle_complete",
		Tier:     tier.String(),
		Fields:   map[string]interface{}{"cycle_id": cycleID, "collectors": len(outcomes)},
	})
}

// Run starts the scheduler, the HTTP server, and (if enabled) the secondary
// exporter, blocking until ctx is cancelled or the HTTP server fails to
// serve. On return the HTTP server has been gracefully shut down.
func (e *Engine) Run(ctx context.Context) error {
	serveErr := make(chan error, 1)
	go func() {
		if err := e.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	if e.secondaryExp != nil {
		go e.secondaryExp.Run(ctx)
	}

	go e.scheduler.Run(ctx)

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.httpServer.Shutdown(shutdownCtx)
}
