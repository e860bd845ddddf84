// Package collector implements the Collector Registry (C2): static
// discovery and ordered iteration of collector implementations by tier.
package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/domain"
	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/inventory"
	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/merakiclient"
	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/registry"
	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/telemetry/logging"
)

// CycleContext is created at the start of each tier tick and destroyed when
// the tick completes; exactly one exists per (tier, tick). Context carries
// cancellation; the remaining fields are the collector's view of the
// running cycle: its inventory handle, the metric sink to write through, and
// a logger pre-bound with correlation fields.
type CycleContext struct {
	context.Context
	Tier       domain.Tier
	TierPeriod time.Duration // this tier's configured period, for TTL stamping
	CycleID    string
	StartedAt  int64 // unix seconds
	Deadline   int64 // unix seconds

	// BatchSize and BatchDelay govern how high-fanout collectors page
	// through device lists: items run concurrently within a batch, with
	// BatchDelay between batches. Zero values mean one unbounded batch.
	BatchSize  int
	BatchDelay time.Duration

	Inventory *inventory.Cache
	Metrics   *registry.Registry
	Client    merakiclient.Client // for endpoints the Inventory Cache doesn't cover
	Log       logging.Logger
}

// Collector is the polymorphic handle every registered unit of collection
// implements. Coordinators compose child Collectors rather than the
// Registry seeing them directly.
type Collector interface {
	Name() string
	Tier() domain.Tier
	Collect(cc CycleContext) domain.CollectResult
}

// Descriptor is the immutable-after-registration record the Registry keeps
// per collector.
type Descriptor struct {
	Name    string
	Tier    domain.Tier
	Enabled bool
	Impl    Collector
}

// Registry discovers collector implementations at startup, groups them by
// tier, and exposes deterministic iteration order (registration order).
type Registry struct {
	order  []string
	byTier map[domain.Tier][]Descriptor
	names  map[string]struct{}
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byTier: make(map[domain.Tier][]Descriptor),
		names:  make(map[string]struct{}),
	}
}

// Register adds impl, gated by enabled. Duplicate names are rejected.
func (r *Registry) Register(impl Collector, enabled bool) error {
	name := impl.Name()
	if name == "" {
		return fmt.Errorf("collector name required")
	}
	if _, exists := r.names[name]; exists {
		return fmt.Errorf("collector %q already registered", name)
	}
	if !impl.Tier().Valid() {
		return fmt.Errorf("collector %q has invalid tier %q", name, impl.Tier())
	}
	r.names[name] = struct{}{}
	r.order = append(r.order, name)
	desc := Descriptor{Name: name, Tier: impl.Tier(), Enabled: enabled, Impl: impl}
	r.byTier[impl.Tier()] = append(r.byTier[impl.Tier()], desc)
	return nil
}

// ByTier returns every descriptor for tier, in registration order.
func (r *Registry) ByTier(tier domain.Tier) []Descriptor {
	return append([]Descriptor{}, r.byTier[tier]...)
}

// All returns every registered descriptor across tiers, in registration
// order, for diagnostics.
func (r *Registry) All() []Descriptor {
	byName := make(map[string]Descriptor, len(r.order))
	for _, descs := range r.byTier {
		for _, d := range descs {
			byName[d.Name] = d
		}
	}
	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, byName[name])
	}
	return out
}
