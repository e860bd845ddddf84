package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/collector"
	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/domain"
	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/inventory"
	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/merakiclient"
	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/registry"
	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/telemetry/logging"
)

// RunOptions configures one tier's execution.
type RunOptions struct {
	CollectorTimeout time.Duration // default per collector; individual collectors may run shorter
	Logger           logging.Logger
	CycleID          string
	Inventory        *inventory.Cache
	Metrics          *registry.Registry
	Client           merakiclient.Client
	TierPeriod       time.Duration
	BatchSize        int
	BatchDelay       time.Duration
}

// CollectorOutcome pairs a descriptor with the result of running it once.
type CollectorOutcome struct {
	Name     string
	Result   domain.CollectResult
	Duration time.Duration
}

// Run executes every descriptor in tier order under the tier's deadline:
// collectors start in registration order but may finish in any order, each
// bound by min(collector timeout, remaining tier budget) — the stricter of
// the two always applies.
func Run(ctx context.Context, descs []collector.Descriptor, tierDeadline time.Time, opts RunOptions) []CollectorOutcome {
	log := opts.Logger
	if log == nil {
		log = logging.New(nil)
	}

	outcomes := make([]CollectorOutcome, len(descs))
	var wg sync.WaitGroup
	for i, desc := range descs {
		if !desc.Enabled {
			outcomes[i] = CollectorOutcome{Name: desc.Name, Result: domain.CollectResult{Outcome: domain.OutcomeOK}}
			continue
		}
		wg.Add(1)
		go func(i int, desc collector.Descriptor) {
			defer wg.Done()
			outcomes[i] = runOne(ctx, desc, tierDeadline, opts, log)
		}(i, desc)
	}
	wg.Wait()
	return outcomes
}

func runOne(ctx context.Context, desc collector.Descriptor, tierDeadline time.Time, opts RunOptions, log logging.Logger) CollectorOutcome {
	deadline := tierDeadline
	if opts.CollectorTimeout > 0 {
		byTimeout := time.Now().Add(opts.CollectorTimeout)
		if byTimeout.Before(deadline) {
			deadline = byTimeout
		}
	}
	cctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	corrCtx := logging.WithCollector(logging.WithCorrelation(cctx, logging.Correlation{
		Tier:    desc.Tier.String(),
		CycleID: opts.CycleID,
	}), desc.Name)

	runCtx := collector.CycleContext{
		Context:    corrCtx,
		Tier:       desc.Tier,
		TierPeriod: opts.TierPeriod,
		CycleID:    opts.CycleID,
		StartedAt:  time.Now().Unix(),
		Deadline:   deadline.Unix(),
		BatchSize:  opts.BatchSize,
		BatchDelay: opts.BatchDelay,
		Inventory:  opts.Inventory,
		Metrics:    opts.Metrics,
		Client:     opts.Client,
		Log:        log,
	}

	start := time.Now()
	result := desc.Impl.Collect(runCtx)
	elapsed := time.Since(start)

	if cctx.Err() != nil && result.Outcome != domain.OutcomeFailed {
		result = result.Merge(domain.CollectResult{
			Outcome: domain.OutcomeFailed,
			Errors:  []domain.ErrorRecord{domain.NewErrorRecord(desc.Name, deadline.Unix(), cctx.Err())},
		})
	}
	if result.Outcome == domain.OutcomeFailed {
		log.WarnCtx(ctx, "collector failed", "collector", desc.Name, "duration_s", elapsed.Seconds())
	}
	return CollectorOutcome{Name: desc.Name, Result: result, Duration: elapsed}
}

// Batches splits items into groups of size batchSize (collector-specific
// default), for collectors with high item fanout. A batchSize <= 0 returns
// a single batch containing everything.
func Batches[T any](items []T, batchSize int) [][]T {
	if batchSize <= 0 || len(items) == 0 {
		return [][]T{items}
	}
	var out [][]T
	for i := 0; i < len(items); i += batchSize {
		end := i + batchSize
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[i:end])
	}
	return out
}

// RunBatched iterates batches produced by Batches, running fn for each item
// concurrently within a batch (bounded by the caller's Limiter via fn's own
// Acquire/Do calls) and waiting batchDelay between batches.
func RunBatched[T any](ctx context.Context, items []T, batchSize int, batchDelay time.Duration, fn func(ctx context.Context, item T) error) []error {
	batches := Batches(items, batchSize)
	var errs []error
	var mu sync.Mutex
	for bi, batch := range batches {
		var wg sync.WaitGroup
		for _, item := range batch {
			wg.Add(1)
			go func(item T) {
				defer wg.Done()
				if err := fn(ctx, item); err != nil {
					mu.Lock()
					errs = append(errs, err)
					mu.Unlock()
				}
			}(item)
		}
		wg.Wait()
		if bi < len(batches)-1 && batchDelay > 0 {
			select {
			case <-time.After(batchDelay):
			case <-ctx.Done():
				return errs
			}
		}
	}
	return errs
}
