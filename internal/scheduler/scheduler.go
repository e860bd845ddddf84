// Package scheduler implements the Scheduler (C1): three independent
// periodic loops, one per tier, each firing ticks aligned to process start,
// enforcing the skip-not-queue overrun policy, and running a sequential
// startup warmup across all tiers before the periodic loops begin.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/collector"
	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/domain"
	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/inventory"
	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/merakiclient"
	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/pipeline"
	metricreg "github.com/rknightion/meraki-dashboard-exporter-sub001/internal/registry"
	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/telemetry/logging"
)

const tickReadyFraction = 0.9 // cycle deadline = 90% of the tier period

var overrunsMetric = domain.MetricDefinition{
	Name:        "tier_overruns_total",
	Kind:        domain.KindCounter,
	Help:        "Count of tier ticks skipped because the prior cycle had not finished by the next boundary.",
	LabelSchema: []string{"tier"},
}

// OnCycleComplete is invoked after every tier cycle with the outcomes of
// each collector that ran, letting the caller wire health accounting and
// cardinality bookkeeping without the Scheduler depending on either.
type OnCycleComplete func(tier domain.Tier, cycleID string, outcomes []pipeline.CollectorOutcome)

// Options configures a Scheduler.
type Options struct {
	Collectors       *collector.Registry
	Metrics          *metricreg.Registry
	Client           merakiclient.Client
	Periods          domain.TierPeriods
	CollectorTimeout time.Duration
	BatchSize        int
	BatchDelay       time.Duration
	Logger           logging.Logger
	OnCycleComplete  OnCycleComplete
}

// Scheduler drives the Fast/Medium/Slow tier loops.
type Scheduler struct {
	collectors       *collector.Registry
	metrics          *metricreg.Registry
	client           merakiclient.Client
	periods          domain.TierPeriods
	collectorTimeout time.Duration
	batchSize        int
	batchDelay       time.Duration
	log              logging.Logger
	onComplete       OnCycleComplete

	start      time.Time
	warmingUp  atomic.Bool
	overrunsMu sync.Mutex
	overruns   map[domain.Tier]int
	tickMu     sync.Mutex
	lastTick   map[domain.Tier]time.Time
}

// New constructs a Scheduler. Metric definitions needed by the Scheduler
// itself (tier_overruns_total) are registered against opts.Metrics; callers
// must not have already registered that name.
func New(opts Options) (*Scheduler, error) {
	log := opts.Logger
	if log == nil {
		log = logging.New(nil)
	}
	if err := opts.Metrics.Define(overrunsMetric); err != nil {
		return nil, err
	}
	s := &Scheduler{
		collectors:       opts.Collectors,
		metrics:          opts.Metrics,
		client:           opts.Client,
		periods:          opts.Periods,
		collectorTimeout: opts.CollectorTimeout,
		batchSize:        opts.BatchSize,
		batchDelay:       opts.BatchDelay,
		log:              log,
		onComplete:       opts.OnCycleComplete,
		overruns:         make(map[domain.Tier]int),
		lastTick:         make(map[domain.Tier]time.Time),
	}
	s.warmingUp.Store(true)
	return s, nil
}

// Warming reports whether the startup warmup cycle is still in progress; a
// scrape arriving during this window should surface a "warming" indicator
// rather than an empty metric set.
func (s *Scheduler) Warming() bool { return s.warmingUp.Load() }

// Run performs the sequential startup warmup (Fast, then Medium, then Slow)
// and then launches the three periodic tier loops, blocking until ctx is
// cancelled. On cancellation it waits for in-flight cycles to finish before
// returning, giving collectors a cooperative shutdown window.
func (s *Scheduler) Run(ctx context.Context) {
	s.start = time.Now()

	for _, tier := range domain.Ordered() {
		if ctx.Err() != nil {
			break
		}
		deadline := time.Now().Add(time.Duration(float64(s.periods.Period(tier)) * tickReadyFraction))
		s.runCycle(ctx, tier, deadline)
	}
	s.warmingUp.Store(false)

	var wg sync.WaitGroup
	for _, tier := range domain.Ordered() {
		wg.Add(1)
		go func(tier domain.Tier) {
			defer wg.Done()
			s.tierLoop(ctx, tier)
		}(tier)
	}
	wg.Wait()
}

// tierLoop sleeps to tick boundaries aligned to s.start, runs one cycle per
// boundary, and applies the skip-not-queue overrun policy when a cycle is
// still running past its next boundary.
func (s *Scheduler) tierLoop(ctx context.Context, tier domain.Tier) {
	period := s.periods.Period(tier)
	next := s.start.Add(period)
	consecutiveOverruns := 0

	for {
		wait := time.Until(next)
		if wait > 0 {
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return
			}
		}
		if ctx.Err() != nil {
			return
		}

		deadline := time.Now().Add(time.Duration(float64(period) * tickReadyFraction))
		s.runCycle(ctx, tier, deadline)

		finished := time.Now()
		next = next.Add(period)
		if finished.After(next) {
			for finished.After(next) {
				next = next.Add(period)
			}
			s.recordOverrun(tier)
			consecutiveOverruns++
			if consecutiveOverruns >= 2 {
				s.log.ErrorCtx(ctx, "tier has overrun twice consecutively", "tier", tier.String())
			} else {
				s.log.WarnCtx(ctx, "tier cycle overran its period, next tick skipped", "tier", tier.String())
			}
		} else {
			consecutiveOverruns = 0
		}
	}
}

// runCycle opens a fresh cycle context for tier, runs every registered
// collector for that tier under the Execution Pipeline, and reports the
// outcome.
func (s *Scheduler) runCycle(ctx context.Context, tier domain.Tier, deadline time.Time) {
	cycleID := tier.String() + "-" + uuid.NewString()
	cycleCtx := logging.WithCorrelation(ctx, logging.Correlation{Tier: tier.String(), CycleID: cycleID})

	cache := inventory.New(s.client)
	descs := s.collectors.ByTier(tier)

	outcomes := pipeline.Run(cycleCtx, descs, deadline, pipeline.RunOptions{
		CollectorTimeout: s.collectorTimeout,
		Logger:           s.log,
		CycleID:          cycleID,
		Inventory:        cache,
		Metrics:          s.metrics,
		Client:           s.client,
		TierPeriod:       s.periods.Period(tier),
		BatchSize:        s.batchSize,
		BatchDelay:       s.batchDelay,
	})

	s.tickMu.Lock()
	s.lastTick[tier] = time.Now()
	s.tickMu.Unlock()

	if s.onComplete != nil {
		s.onComplete(tier, cycleID, outcomes)
	}
}

// LastTick returns a point-in-time copy of each tier's most recent cycle
// completion time, used by the status endpoint.
func (s *Scheduler) LastTick() map[domain.Tier]time.Time {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()
	out := make(map[domain.Tier]time.Time, len(s.lastTick))
	for k, v := range s.lastTick {
		out[k] = v
	}
	return out
}

func (s *Scheduler) recordOverrun(tier domain.Tier) {
	s.overrunsMu.Lock()
	s.overruns[tier]++
	s.overrunsMu.Unlock()
	if err := s.metrics.Inc("tier_overruns_total", []string{tier.String()}, 1, s.periods.Period(tier)); err != nil {
		s.log.WarnCtx(context.Background(), "failed to record tier overrun", "tier", tier.String(), "error", err.Error())
	}
}

// Overruns returns a point-in-time copy of overrun counts per tier, used by
// the status endpoint.
func (s *Scheduler) Overruns() map[domain.Tier]int {
	s.overrunsMu.Lock()
	defer s.overrunsMu.Unlock()
	out := make(map[domain.Tier]int, len(s.overruns))
	for k, v := range s.overruns {
		out[k] = v
	}
	return out
}
