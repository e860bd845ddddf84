package collector

import "github.com/rknightion/meraki-dashboard-exporter-sub001/internal/domain"

// Coordinator composes an ordered list of child Collectors sharing the same
// cycle context. The Registry never sees children directly; only the
// Coordinator is registered. Sub-collector registration order is preserved
// deterministically (a slice, never a map).
type Coordinator struct {
	name     string
	tier     domain.Tier
	children []Collector
}

// NewCoordinator constructs a Coordinator with the given name and tier; add
// children via AddChild in the order they should run.
func NewCoordinator(name string, tier domain.Tier) *Coordinator {
	return &Coordinator{name: name, tier: tier}
}

// AddChild appends a sub-collector, preserving insertion order.
func (c *Coordinator) AddChild(child Collector) { c.children = append(c.children, child) }

func (c *Coordinator) Name() string      { return c.name }
func (c *Coordinator) Tier() domain.Tier { return c.tier }

// Collect runs every child in order against the shared cycle context,
// merging their results (worst outcome wins, errors and item counts
// accumulate).
func (c *Coordinator) Collect(cc CycleContext) domain.CollectResult {
	result := domain.CollectResult{Outcome: domain.OutcomeOK}
	for _, child := range c.children {
		select {
		case <-cc.Done():
			result = result.Merge(domain.CollectResult{
				Outcome: domain.OutcomeFailed,
				Errors:  []domain.ErrorRecord{domain.NewErrorRecord(child.Name(), cc.Deadline, cc.Err())},
			})
			return result
		default:
		}
		result = result.Merge(child.Collect(cc))
	}
	return result
}
