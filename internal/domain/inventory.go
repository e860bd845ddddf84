package domain

import "time"

// InventoryKind distinguishes the three inventory entry shapes the cache
// holds.
type InventoryKind string

const (
	KindOrg     InventoryKind = "org"
	KindNetwork InventoryKind = "network"
	KindDevice  InventoryKind = "device"
)

// InventoryEntry is a cached upstream listing, keyed and owned by the
// Inventory Cache for the lifetime of one cycle.
type InventoryEntry struct {
	Kind       InventoryKind
	ID         string
	Attributes map[string]string
	FetchedAt  time.Time
	TTL        time.Duration
}

// Expired reports whether the entry is stale relative to now.
func (e InventoryEntry) Expired(now time.Time) bool {
	return now.Sub(e.FetchedAt) > e.TTL
}

// Organization is the dashboard's top-level billing/administrative unit.
type Organization struct {
	ID   string
	Name string
}

// Network groups devices under an Organization.
type Network struct {
	ID           string
	OrgID        string
	Name         string
	ProductTypes []string
}

// Device is a single managed appliance within a Network.
type Device struct {
	Serial      string
	NetworkID   string
	OrgID       string
	Model       string
	ProductType string
	Name        string
	Status      string
}
