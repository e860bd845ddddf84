package collectors

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/collector"
	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/domain"
	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/health"
	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/inventory"
)

// Happy path: three organizations with two devices each, collected on the
// Fast tier. One series per device exists after a cycle, and re-running
// against identical upstream data leaves the same six series in place.
func TestHappyPathFastTierSixSeriesAcrossCycles(t *testing.T) {
	client := &fakeClient{devices: map[string][]domain.Device{}}
	for i := 1; i <= 3; i++ {
		orgID := fmt.Sprintf("org%d", i)
		client.orgs = append(client.orgs, domain.Organization{ID: orgID, Name: "Org " + orgID})
		for j := 1; j <= 2; j++ {
			client.devices[orgID] = append(client.devices[orgID], domain.Device{
				Serial:      fmt.Sprintf("Q2AP-%d%02d", i, j),
				OrgID:       orgID,
				NetworkID:   "net" + orgID,
				ProductType: "wireless",
				Model:       "MR36",
				Status:      "online",
			})
		}
	}
	reg := newTestRegistry(t)

	runCycle := func() domain.CollectResult {
		cc := collector.CycleContext{
			Context:    context.Background(),
			Tier:       domain.TierFast,
			TierPeriod: 60 * time.Second,
			Inventory:  inventory.New(client),
			Metrics:    reg,
			Client:     client,
		}
		return deviceIdentityCollector{}.Collect(cc)
	}

	result := runCycle()
	assert.Equal(t, domain.OutcomeOK, result.Outcome)
	assert.Equal(t, 6, result.ItemsProcessed)
	assert.Equal(t, 6, reg.SeriesCount("meraki_device_status"))

	result = runCycle()
	assert.Equal(t, domain.OutcomeOK, result.Outcome)
	assert.Equal(t, 6, reg.SeriesCount("meraki_device_status"))
}

// Partial failure: ten devices, two of which fail their status fetch after
// retries. Eight series are written, both failures are categorized as
// server errors, the collector reports partial, and partial does not count
// toward the consecutive-failure streak.
func TestPartialFailureWritesSuccessesAndReportsPartial(t *testing.T) {
	client := &fakeClient{
		orgs:    []domain.Organization{{ID: "org1", Name: "Acme"}},
		devices: map[string][]domain.Device{},
		gets:    map[string]interface{}{},
		getErrs: map[string]error{},
	}
	for i := 1; i <= 10; i++ {
		serial := fmt.Sprintf("Q2AP-%04d", i)
		client.devices["org1"] = append(client.devices["org1"], domain.Device{
			Serial: serial, OrgID: "org1", NetworkID: "net1", ProductType: "wireless", Status: "online",
		})
		path := "/devices/" + serial + "/wireless/status"
		if i == 3 || i == 7 {
			client.getErrs[path] = &domain.APIError{
				Category:   domain.ErrAPIServerError,
				StatusCode: 502,
				Err:        fmt.Errorf("bad gateway"),
			}
			continue
		}
		client.gets[path] = map[string]interface{}{"clientCount": i, "signalQualityPercent": 90.0}
	}
	reg := newTestRegistry(t)
	cc := collector.CycleContext{
		Context:    context.Background(),
		Tier:       domain.TierMedium,
		TierPeriod: 300 * time.Second,
		BatchSize:  4,
		Inventory:  inventory.New(client),
		Metrics:    reg,
		Client:     client,
	}

	result := wirelessCollector{}.Collect(cc)
	assert.Equal(t, domain.OutcomePartial, result.Outcome)
	assert.Equal(t, 8, result.ItemsProcessed)
	assert.Equal(t, 8, reg.SeriesCount("meraki_wireless_client_count"))
	require.Len(t, result.Errors, 2)
	for _, rec := range result.Errors {
		assert.Equal(t, domain.ErrAPIServerError, rec.Category)
	}

	st := health.NewCollectorState("device.wireless", 3, 10)
	st.RecordOutcome(result.Outcome, result.Errors, time.Now())
	assert.Equal(t, 0, st.ConsecutiveFailures())
	assert.False(t, st.LastSuccess().IsZero())
}

func TestOrganizationCollectorRecordsAPIRequestUsage(t *testing.T) {
	client := &fakeClient{
		orgs: []domain.Organization{{ID: "org1", Name: "Acme"}},
		gets: map[string]interface{}{
			"/organizations/org1/apiRequests/overview?timespan=3600": map[string]interface{}{
				"responseCodeCounts": map[string]float64{"200": 150, "404": 2},
			},
		},
	}
	reg := newTestRegistry(t)
	cc := collector.CycleContext{
		Context:    context.Background(),
		Tier:       domain.TierFast,
		TierPeriod: time.Minute,
		Inventory:  inventory.New(client),
		Metrics:    reg,
		Client:     client,
	}

	result := NewOrganizationCollector().Collect(cc)
	assert.Equal(t, domain.OutcomeOK, result.Outcome)
	assert.Equal(t, 1, reg.SeriesCount("meraki_organization_api_requests_total"))
}

// A 404 from the usage report means the organization's plan lacks it; the
// sub-task is skipped for the cycle without degrading the collector.
func TestOrganizationCollectorSkipsUsageWhenUnavailable(t *testing.T) {
	client := &fakeClient{
		orgs: []domain.Organization{{ID: "org1", Name: "Acme"}},
		getErrs: map[string]error{
			"/organizations/org1/apiRequests/overview?timespan=3600": &domain.APIError{
				Category:   domain.ErrAPINotFound,
				StatusCode: 404,
				Err:        fmt.Errorf("not found"),
			},
		},
	}
	reg := newTestRegistry(t)
	cc := collector.CycleContext{
		Context:    context.Background(),
		Tier:       domain.TierFast,
		TierPeriod: time.Minute,
		Inventory:  inventory.New(client),
		Metrics:    reg,
		Client:     client,
	}

	result := NewOrganizationCollector().Collect(cc)
	assert.Equal(t, domain.OutcomeOK, result.Outcome)
	assert.Empty(t, result.Errors)
	assert.Equal(t, 0, reg.SeriesCount("meraki_organization_api_requests_total"))
}
