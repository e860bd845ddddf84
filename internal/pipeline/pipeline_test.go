package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/collector"
	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/domain"
)

type slowCollector struct {
	name  string
	tier  domain.Tier
	sleep time.Duration
}

func (s *slowCollector) Name() string      { return s.name }
func (s *slowCollector) Tier() domain.Tier { return s.tier }
func (s *slowCollector) Collect(cc collector.CycleContext) domain.CollectResult {
	select {
	case <-time.After(s.sleep):
		return domain.CollectResult{Outcome: domain.OutcomeOK, ItemsProcessed: 1}
	case <-cc.Done():
		return domain.CollectResult{Outcome: domain.OutcomeFailed}
	}
}

// obliviousCollector ignores its deadline entirely, so Run's post-Collect
// cctx.Err() check is what surfaces the timeout, not the collector itself.
type obliviousCollector struct {
	name string
	tier domain.Tier
}

func (o *obliviousCollector) Name() string      { return o.name }
func (o *obliviousCollector) Tier() domain.Tier { return o.tier }
func (o *obliviousCollector) Collect(cc collector.CycleContext) domain.CollectResult {
	time.Sleep(40 * time.Millisecond)
	return domain.CollectResult{Outcome: domain.OutcomeOK, ItemsProcessed: 1}
}

func TestRunRespectsCollectorTimeout(t *testing.T) {
	descs := []collector.Descriptor{
		{Name: "slow", Tier: domain.TierFast, Enabled: true, Impl: &slowCollector{name: "slow", tier: domain.TierFast, sleep: 200 * time.Millisecond}},
	}
	outcomes := Run(context.Background(), descs, time.Now().Add(time.Hour), RunOptions{CollectorTimeout: 20 * time.Millisecond})
	require.Len(t, outcomes, 1)
	assert.Equal(t, domain.OutcomeFailed, outcomes[0].Result.Outcome)
}

func TestRunRecordsTimeoutCategoryOnDeadlineExceeded(t *testing.T) {
	descs := []collector.Descriptor{
		{Name: "oblivious", Tier: domain.TierFast, Enabled: true, Impl: &obliviousCollector{name: "oblivious", tier: domain.TierFast}},
	}
	outcomes := Run(context.Background(), descs, time.Now().Add(time.Hour), RunOptions{CollectorTimeout: 10 * time.Millisecond})
	require.Len(t, outcomes, 1)
	require.Equal(t, domain.OutcomeFailed, outcomes[0].Result.Outcome)
	require.Len(t, outcomes[0].Result.Errors, 1)
	assert.Equal(t, domain.ErrTimeout, outcomes[0].Result.Errors[0].Category)
	assert.True(t, outcomes[0].Result.Errors[0].Retriable)
}

func TestRunSkipsDisabledCollectors(t *testing.T) {
	descs := []collector.Descriptor{
		{Name: "disabled", Tier: domain.TierFast, Enabled: false, Impl: &slowCollector{name: "disabled", tier: domain.TierFast}},
	}
	outcomes := Run(context.Background(), descs, time.Now().Add(time.Hour), RunOptions{})
	require.Len(t, outcomes, 1)
	assert.Equal(t, domain.OutcomeOK, outcomes[0].Result.Outcome)
}

func TestBatchesSplitsEvenly(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	batches := Batches(items, 2)
	require.Len(t, batches, 3)
	assert.Equal(t, []int{1, 2}, batches[0])
	assert.Equal(t, []int{5}, batches[2])
}

func TestBatchesZeroSizeReturnsSingleBatch(t *testing.T) {
	items := []int{1, 2, 3}
	batches := Batches(items, 0)
	require.Len(t, batches, 1)
	assert.Equal(t, items, batches[0])
}

func TestRunBatchedAppliesDelayBetweenBatches(t *testing.T) {
	items := []int{1, 2, 3, 4}
	start := time.Now()
	errs := RunBatched(context.Background(), items, 2, 20*time.Millisecond, func(ctx context.Context, item int) error {
		return nil
	})
	assert.Empty(t, errs)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}
