package collectors

import (
	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/collector"
	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/domain"
)

// wirelessCollector emits a representative subset of the vendor's wireless
// catalog: client count and signal quality per access point.
type wirelessCollector struct{}

func (wirelessCollector) Name() string      { return "device.wireless" }
func (wirelessCollector) Tier() domain.Tier { return domain.TierMedium }

type wirelessStatus struct {
	ClientCount   int     `json:"clientCount"`
	SignalQuality float64 `json:"signalQualityPercent"`
}

func (w wirelessCollector) Collect(cc collector.CycleContext) domain.CollectResult {
	return collectDeviceFamily(cc, w.Name(), []string{"wireless"}, func(d domain.Device) error {
		var status wirelessStatus
		if err := cc.Client.Get(cc.Context, "/devices/"+d.Serial+"/wireless/status", &status); err != nil {
			return err
		}
		if err := cc.Metrics.Set("meraki_wireless_client_count", []string{d.Serial, d.NetworkID}, float64(status.ClientCount), cc.TierPeriod); err != nil {
			return err
		}
		return cc.Metrics.Set("meraki_wireless_signal_quality_percent", []string{d.Serial, d.NetworkID}, status.SignalQuality, cc.TierPeriod)
	})
}
