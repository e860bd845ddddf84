package collectors

import (
	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/collector"
	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/domain"
)

// switchCollector emits per-port link status and cumulative traffic
// counters for switch-family devices.
type switchCollector struct{}

func (switchCollector) Name() string      { return "device.switch" }
func (switchCollector) Tier() domain.Tier { return domain.TierMedium }

type switchPortStatus struct {
	PortID  string `json:"portId"`
	Status  string `json:"status"`
	Traffic struct {
		Sent int64 `json:"sent"`
		Recv int64 `json:"recv"`
	} `json:"traffic"`
}

func (s switchCollector) Collect(cc collector.CycleContext) domain.CollectResult {
	return collectDeviceFamily(cc, s.Name(), []string{"switch"}, func(d domain.Device) error {
		var ports []switchPortStatus
		if err := cc.Client.Get(cc.Context, "/devices/"+d.Serial+"/switch/ports/statuses", &ports); err != nil {
			return err
		}
		for _, p := range ports {
			up := 0.0
			if p.Status == "Connected" {
				up = 1.0
			}
			if err := cc.Metrics.Set("meraki_switch_port_status", []string{d.Serial, p.PortID}, up, cc.TierPeriod); err != nil {
				return err
			}
			if err := cc.Metrics.IncAbsolute("meraki_switch_port_traffic_bytes_total", []string{d.Serial, p.PortID, "sent"}, float64(p.Traffic.Sent), cc.TierPeriod); err != nil {
				return err
			}
			if err := cc.Metrics.IncAbsolute("meraki_switch_port_traffic_bytes_total", []string{d.Serial, p.PortID, "recv"}, float64(p.Traffic.Recv), cc.TierPeriod); err != nil {
				return err
			}
		}
		return nil
	})
}
