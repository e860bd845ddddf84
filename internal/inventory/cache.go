// Package inventory implements the Inventory Cache (C3): a per-cycle
// memoization layer in front of the three upstream listing operations, with
// per-key single-flight deduplication so concurrent callers within the same
// cycle never issue more than one in-flight fetch for the same key.
package inventory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/domain"
	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/merakiclient"
)

// Cache is scoped to exactly one cycle context; callers construct a fresh
// Cache per tick and discard it when the cycle ends. Two tiers, or two ticks
// of the same tier, never share a Cache instance.
type Cache struct {
	client merakiclient.Client

	mu       sync.Mutex
	inFlight map[string]*call
	done     map[string]*call
}

type call struct {
	wg  sync.WaitGroup
	val interface{}
	err error
}

// New constructs a Cache backed by client, fresh for one cycle.
func New(client merakiclient.Client) *Cache {
	return &Cache{client: client, inFlight: make(map[string]*call), done: make(map[string]*call)}
}

// do implements the per-key single-flight contract: the first caller for a
// key fetches, concurrent and subsequent callers within the cycle reuse the
// result (including cached failures).
func (c *Cache) do(key string, fetch func() (interface{}, error)) (interface{}, error) {
	c.mu.Lock()
	if cl, ok := c.done[key]; ok {
		c.mu.Unlock()
		return cl.val, cl.err
	}
	if cl, ok := c.inFlight[key]; ok {
		c.mu.Unlock()
		cl.wg.Wait()
		return cl.val, cl.err
	}
	cl := &call{}
	cl.wg.Add(1)
	c.inFlight[key] = cl
	c.mu.Unlock()

	cl.val, cl.err = fetch()
	cl.wg.Done()

	c.mu.Lock()
	delete(c.inFlight, key)
	c.done[key] = cl
	c.mu.Unlock()

	return cl.val, cl.err
}

// ListOrganizations returns the cached (or newly fetched) organization list.
func (c *Cache) ListOrganizations(ctx context.Context) ([]domain.Organization, error) {
	v, err := c.do("org\x00list", func() (interface{}, error) {
		return c.client.ListOrganizations(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.Organization), nil
}

// ListNetworks returns the cached (or newly fetched) network list for orgID.
func (c *Cache) ListNetworks(ctx context.Context, orgID string) ([]domain.Network, error) {
	key := "net\x00" + orgID
	v, err := c.do(key, func() (interface{}, error) {
		return c.client.ListNetworks(ctx, orgID)
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.Network), nil
}

// ListDevices returns the cached (or newly fetched) device list for
// (orgID, productTypes). The cache key normalizes the filter set (sorted,
// deduplicated) so two requests naming the same filters in different order
// share one fetch, while disjoint filter sets never collide.
func (c *Cache) ListDevices(ctx context.Context, orgID string, productTypes []string) ([]domain.Device, error) {
	key := "dev\x00" + orgID + "\x00" + normalizeFilters(productTypes)
	v, err := c.do(key, func() (interface{}, error) {
		return c.client.ListDevices(ctx, orgID, productTypes)
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.Device), nil
}

func normalizeFilters(filters []string) string {
	if len(filters) == 0 {
		return ""
	}
	cp := append([]string{}, filters...)
	sort.Strings(cp)
	seen := make(map[string]struct{}, len(cp))
	out := cp[:0]
	for _, f := range cp {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return strings.Join(out, ",")
}
