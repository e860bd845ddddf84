package collectors

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/collector"
	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/domain"
	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/inventory"
	metricreg "github.com/rknightion/meraki-dashboard-exporter-sub001/internal/registry"
)

type fakeClient struct {
	orgs    []domain.Organization
	nets    map[string][]domain.Network
	devices map[string][]domain.Device
	gets    map[string]interface{}
	getErrs map[string]error
}

func (f *fakeClient) ListOrganizations(ctx context.Context) ([]domain.Organization, error) {
	return f.orgs, nil
}
func (f *fakeClient) ListNetworks(ctx context.Context, orgID string) ([]domain.Network, error) {
	return f.nets[orgID], nil
}
func (f *fakeClient) ListDevices(ctx context.Context, orgID string, productTypes []string) ([]domain.Device, error) {
	var out []domain.Device
	for _, d := range f.devices[orgID] {
		if len(productTypes) == 0 {
			out = append(out, d)
			continue
		}
		for _, pt := range productTypes {
			if d.ProductType == pt {
				out = append(out, d)
			}
		}
	}
	return out, nil
}
func (f *fakeClient) Get(ctx context.Context, path string, out interface{}) error {
	if err, ok := f.getErrs[path]; ok {
		return err
	}
	v, ok := f.gets[path]
	if !ok {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

func newTestRegistry(t *testing.T) *metricreg.Registry {
	t.Helper()
	reg := metricreg.New(metricreg.Options{})
	require.NoError(t, RegisterCatalog(reg))
	t.Cleanup(reg.Close)
	return reg
}

func TestOrganizationCollectorEmitsInfoAndLicenseSeats(t *testing.T) {
	client := &fakeClient{
		orgs: []domain.Organization{{ID: "org1", Name: "Acme"}},
		gets: map[string]interface{}{
			"/organizations/org1/licenses/overview": map[string]interface{}{
				"status":               "OK",
				"licensedDeviceCounts": map[string]int{"MR": 10, "MS": 5},
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

	c := NewOrganizationCollector()
	result := c.Collect(cc)
	assert.Equal(t, domain.OutcomeOK, result.Outcome)
	assert.Equal(t, 1, result.ItemsProcessed)
	assert.Equal(t, 1, reg.SeriesCount("meraki_organization_info"))
	assert.Equal(t, 2, reg.SeriesCount("meraki_organization_license_seats"))
}

func TestDeviceCollectorDispatchesByProductType(t *testing.T) {
	client := &fakeClient{
		orgs: []domain.Organization{{ID: "org1", Name: "Acme"}},
		devices: map[string][]domain.Device{
			"org1": {
				{Serial: "Q2AP-0001", OrgID: "org1", NetworkID: "net1", ProductType: "wireless", Model: "MR36", Status: "online"},
				{Serial: "Q2SW-0001", OrgID: "org1", NetworkID: "net1", ProductType: "switch", Model: "MS120", Status: "online"},
				{Serial: "Q2MG-0001", OrgID: "org1", NetworkID: "net1", ProductType: "cellularGateway", Model: "MG21", Status: "online"},
			},
		},
		gets: map[string]interface{}{
			"/devices/Q2AP-0001/wireless/status": map[string]interface{}{
				"clientCount": 4, "signalQualityPercent": 91.5,
			},
			"/devices/Q2SW-0001/switch/ports/statuses": []map[string]interface{}{
				{"portId": "1", "status": "Connected", "traffic": map[string]int64{"sent": 100, "recv": 200}},
			},
			"/devices/Q2MG-0001/cellularGateway/uplink/status": []map[string]interface{}{
				{"signalStat": map[string]float64{"rsrp": -92.0, "rsrq": -8.5}},
			},
		},
	}
	reg := newTestRegistry(t)
	cc := collector.CycleContext{
		Context:    context.Background(),
		Tier:       domain.TierMedium,
		TierPeriod: time.Minute,
		Inventory:  inventory.New(client),
		Metrics:    reg,
		Client:     client,
	}

	coord := NewDeviceCollector()
	result := coord.Collect(cc)
	assert.Equal(t, domain.OutcomeOK, result.Outcome)
	assert.Equal(t, 3, reg.SeriesCount("meraki_device_info"))
	assert.Equal(t, 1, reg.SeriesCount("meraki_wireless_client_count"))
	assert.Equal(t, 1, reg.SeriesCount("meraki_switch_port_status"))
	assert.Equal(t, 2, reg.SeriesCount("meraki_switch_port_traffic_bytes_total"))
	assert.Equal(t, 1, reg.SeriesCount("meraki_cellular_signal_rsrp_dbm"))
	assert.Equal(t, 1, reg.SeriesCount("meraki_cellular_signal_rsrq_db"))
}

func TestNetworkCollectorEmitsClientCount(t *testing.T) {
	client := &fakeClient{
		orgs: []domain.Organization{{ID: "org1"}},
		nets: map[string][]domain.Network{
			"org1": {{ID: "net1", OrgID: "org1", Name: "HQ"}},
		},
		gets: map[string]interface{}{
			"/networks/net1/clients": []map[string]string{{"id": "a"}, {"id": "b"}, {"id": "c"}},
		},
	}
	reg := newTestRegistry(t)
	cc := collector.CycleContext{
		Context:    context.Background(),
		Tier:       domain.TierMedium,
		TierPeriod: time.Minute,
		Inventory:  inventory.New(client),
		Metrics:    reg,
		Client:     client,
	}

	c := NewNetworkCollector()
	result := c.Collect(cc)
	assert.Equal(t, domain.OutcomeOK, result.Outcome)
	assert.Equal(t, 1, reg.SeriesCount("meraki_network_info"))
	assert.Equal(t, 1, reg.SeriesCount("meraki_network_client_count"))
}
