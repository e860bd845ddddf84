package collectors

import (
	"errors"
	"fmt"

	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/collector"
	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/domain"
)

// OrganizationCollector runs on the Fast tier: organization identity,
// licensing gauges, and the dashboard's own API request-volume report.
type OrganizationCollector struct{}

func NewOrganizationCollector() *OrganizationCollector { return &OrganizationCollector{} }

func (c *OrganizationCollector) Name() string      { return "organization" }
func (c *OrganizationCollector) Tier() domain.Tier { return domain.TierFast }

type licenseOverview struct {
	Status               string         `json:"status"`
	LicensedDeviceCounts map[string]int `json:"licensedDeviceCounts"`
}

type apiRequestsOverview struct {
	ResponseCodeCounts map[string]float64 `json:"responseCodeCounts"`
}

func (c *OrganizationCollector) Collect(cc collector.CycleContext) domain.CollectResult {
	orgs, err := cc.Inventory.ListOrganizations(cc.Context)
	if err != nil {
		return domain.CollectResult{
			Outcome: domain.OutcomeFailed,
			Errors:  []domain.ErrorRecord{domain.NewErrorRecord(c.Name(), cc.Deadline, err)},
		}
	}

	result := domain.CollectResult{Outcome: domain.OutcomeOK}
	for _, org := range orgs {
		if err := cc.Metrics.SetInfo("meraki_organization_info", []string{org.ID, org.Name}, cc.TierPeriod); err != nil {
			result = result.Merge(failed(c.Name(), cc.Deadline, err))
			continue
		}

		var overview licenseOverview
		if err := cc.Client.Get(cc.Context, fmt.Sprintf("/organizations/%s/licenses/overview", org.ID), &overview); err != nil {
			result = result.Merge(domain.CollectResult{
				Outcome: domain.OutcomePartial,
				Errors:  []domain.ErrorRecord{domain.NewErrorRecord(c.Name(), cc.Deadline, err)},
			})
			continue
		}
		for deviceType, count := range overview.LicensedDeviceCounts {
			if err := cc.Metrics.Set("meraki_organization_license_seats", []string{org.ID, deviceType}, float64(count), cc.TierPeriod); err != nil {
				result = result.Merge(failed(c.Name(), cc.Deadline, err))
				continue
			}
		}

		result = result.Merge(c.collectAPIUsage(cc, org))
		result.ItemsProcessed++
	}
	return result
}

// collectAPIUsage reads the dashboard's own per-organization request-volume
// report. The endpoint requires an exact 3600s timespan; organizations on
// plans without the report return 404, which skips the sub-task for the
// cycle rather than degrading the collector.
func (c *OrganizationCollector) collectAPIUsage(cc collector.CycleContext, org domain.Organization) domain.CollectResult {
	var usage apiRequestsOverview
	path := fmt.Sprintf("/organizations/%s/apiRequests/overview?timespan=3600", org.ID)
	if err := cc.Client.Get(cc.Context, path, &usage); err != nil {
		var apiErr *domain.APIError
		if errors.As(err, &apiErr) && apiErr.Category == domain.ErrAPINotFound {
			if cc.Log != nil {
				cc.Log.InfoCtx(cc.Context, "api request overview not available for organization", "org_id", org.ID)
			}
			return domain.CollectResult{Outcome: domain.OutcomeOK}
		}
		return domain.CollectResult{
			Outcome: domain.OutcomePartial,
			Errors:  []domain.ErrorRecord{domain.NewErrorRecord(c.Name(), cc.Deadline, err)},
		}
	}

	total := 0.0
	for _, n := range usage.ResponseCodeCounts {
		total += n
	}
	if err := cc.Metrics.IncAbsolute("meraki_organization_api_requests_total", []string{org.ID}, total, cc.TierPeriod); err != nil {
		return failed(c.Name(), cc.Deadline, err)
	}
	return domain.CollectResult{Outcome: domain.OutcomeOK}
}

func failed(name string, whenUnix int64, err error) domain.CollectResult {
	return domain.CollectResult{
		Outcome: domain.OutcomeFailed,
		Errors:  []domain.ErrorRecord{domain.NewErrorRecord(name, whenUnix, err)},
	}
}
