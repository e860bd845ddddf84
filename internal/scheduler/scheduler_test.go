package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/collector"
	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/domain"
	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/pipeline"
	metricreg "github.com/rknightion/meraki-dashboard-exporter-sub001/internal/registry"
)

type orderCollector struct {
	name    string
	tier    domain.Tier
	sleep   time.Duration
	mu      *sync.Mutex
	order   *[]string
}

func (c *orderCollector) Name() string      { return c.name }
func (c *orderCollector) Tier() domain.Tier { return c.tier }
func (c *orderCollector) Collect(cc collector.CycleContext) domain.CollectResult {
	if c.sleep > 0 {
		time.Sleep(c.sleep)
	}
	c.mu.Lock()
	*c.order = append(*c.order, c.name)
	c.mu.Unlock()
	return domain.CollectResult{Outcome: domain.OutcomeOK, ItemsProcessed: 1}
}

func longPeriods() domain.TierPeriods {
	return domain.TierPeriods{Fast: time.Hour, Medium: time.Hour, Slow: time.Hour}
}

func TestSchedulerWarmupRunsTiersSequentially(t *testing.T) {
	reg := collector.NewRegistry()
	var mu sync.Mutex
	var order []string
	// Registered in reverse tier order to prove warmup order is tier-driven,
	// not registration-driven.
	require.NoError(t, reg.Register(&orderCollector{name: "slow", tier: domain.TierSlow, mu: &mu, order: &order}, true))
	require.NoError(t, reg.Register(&orderCollector{name: "medium", tier: domain.TierMedium, mu: &mu, order: &order}, true))
	require.NoError(t, reg.Register(&orderCollector{name: "fast", tier: domain.TierFast, mu: &mu, order: &order}, true))

	metrics := metricreg.New(metricreg.Options{})
	defer metrics.Close()

	s, err := New(Options{Collectors: reg, Metrics: metrics, Periods: longPeriods()})
	require.NoError(t, err)
	assert.True(t, s.Warming())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, 3)
	assert.Equal(t, []string{"fast", "medium", "slow"}, order)
	assert.False(t, s.Warming())
}

func TestSchedulerRecordsOverrunOnSlowCollector(t *testing.T) {
	reg := collector.NewRegistry()
	var mu sync.Mutex
	var order []string
	require.NoError(t, reg.Register(&orderCollector{name: "fast", tier: domain.TierFast, sleep: 120 * time.Millisecond, mu: &mu, order: &order}, true))

	metrics := metricreg.New(metricreg.Options{})
	defer metrics.Close()

	periods := domain.TierPeriods{Fast: 50 * time.Millisecond, Medium: time.Hour, Slow: time.Hour}
	s, err := New(Options{Collectors: reg, Metrics: metrics, Periods: periods})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 400*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	overruns := s.Overruns()
	assert.GreaterOrEqual(t, overruns[domain.TierFast], 1)
	assert.Equal(t, 1, metrics.SeriesCount("tier_overruns_total"))
}

func TestSchedulerOnCycleCompleteFires(t *testing.T) {
	reg := collector.NewRegistry()
	var mu sync.Mutex
	var order []string
	require.NoError(t, reg.Register(&orderCollector{name: "fast", tier: domain.TierFast, mu: &mu, order: &order}, true))

	metrics := metricreg.New(metricreg.Options{})
	defer metrics.Close()

	var completions int
	var completionsMu sync.Mutex
	s, err := New(Options{
		Collectors: reg,
		Metrics:    metrics,
		Periods:    longPeriods(),
		OnCycleComplete: func(tier domain.Tier, cycleID string, outcomes []pipeline.CollectorOutcome) {
			completionsMu.Lock()
			completions++
			completionsMu.Unlock()
			assert.NotEmpty(t, cycleID)
		},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	completionsMu.Lock()
	defer completionsMu.Unlock()
	assert.Equal(t, 3, completions) // one per tier during warmup
}
