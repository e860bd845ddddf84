package collectors

import (
	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/collector"
	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/domain"
)

// NetworkCollector runs on the Medium tier: network identity and a
// client-count gauge per network.
type NetworkCollector struct{}

func NewNetworkCollector() *NetworkCollector { return &NetworkCollector{} }

func (c *NetworkCollector) Name() string      { return "network" }
func (c *NetworkCollector) Tier() domain.Tier { return domain.TierMedium }

type clientsResponse []struct {
	ID string `json:"id"`
}

func (c *NetworkCollector) Collect(cc collector.CycleContext) domain.CollectResult {
	orgs, err := cc.Inventory.ListOrganizations(cc.Context)
	if err != nil {
		return failed(c.Name(), cc.Deadline, err)
	}

	result := domain.CollectResult{Outcome: domain.OutcomeOK}
	for _, org := range orgs {
		networks, err := cc.Inventory.ListNetworks(cc.Context, org.ID)
		if err != nil {
			result = result.Merge(domain.CollectResult{
				Outcome: domain.OutcomePartial,
				Errors:  []domain.ErrorRecord{domain.NewErrorRecord(c.Name(), cc.Deadline, err)},
			})
			continue
		}
		for _, net := range networks {
			if err := cc.Metrics.SetInfo("meraki_network_info", []string{net.ID, net.OrgID, net.Name}, cc.TierPeriod); err != nil {
				result = result.Merge(failed(c.Name(), cc.Deadline, err))
				continue
			}

			var clients clientsResponse
			if err := cc.Client.Get(cc.Context, "/networks/"+net.ID+"/clients", &clients); err != nil {
				result = result.Merge(domain.CollectResult{
					Outcome: domain.OutcomePartial,
					Errors:  []domain.ErrorRecord{domain.NewErrorRecord(c.Name(), cc.Deadline, err)},
				})
				continue
			}
			if err := cc.Metrics.Set("meraki_network_client_count", []string{net.ID, net.OrgID}, float64(len(clients)), cc.TierPeriod); err != nil {
				result = result.Merge(failed(c.Name(), cc.Deadline, err))
				continue
			}
			result.ItemsProcessed++
		}
	}
	return result
}
