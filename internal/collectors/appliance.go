package collectors

import (
	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/collector"
	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/domain"
)

// applianceCollector emits WAN uplink status and latency for security
// appliance devices.
type applianceCollector struct{}

func (applianceCollector) Name() string      { return "device.appliance" }
func (applianceCollector) Tier() domain.Tier { return domain.TierMedium }

type applianceUplink struct {
	Interface string  `json:"interface"`
	Status    string  `json:"status"`
	LatencyMs float64 `json:"latencyMs"`
}

func (a applianceCollector) Collect(cc collector.CycleContext) domain.CollectResult {
	return collectDeviceFamily(cc, a.Name(), []string{"appliance"}, func(d domain.Device) error {
		var uplinks []applianceUplink
		if err := cc.Client.Get(cc.Context, "/devices/"+d.Serial+"/appliance/uplinks/statuses", &uplinks); err != nil {
			return err
		}
		for _, u := range uplinks {
			up := 0.0
			if u.Status == "active" {
				up = 1.0
			}
			if err := cc.Metrics.Set("meraki_appliance_uplink_status", []string{d.Serial, u.Interface}, up, cc.TierPeriod); err != nil {
				return err
			}
			if err := cc.Metrics.Set("meraki_appliance_uplink_latency_ms", []string{d.Serial, u.Interface}, u.LatencyMs, cc.TierPeriod); err != nil {
				return err
			}
		}
		return nil
	})
}
