package collectors

import (
	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/collector"
	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/domain"
)

// cellularGatewayCollector emits LTE signal strength and quality for
// cellular gateway devices.
type cellularGatewayCollector struct{}

func (cellularGatewayCollector) Name() string      { return "device.cellular_gateway" }
func (cellularGatewayCollector) Tier() domain.Tier { return domain.TierMedium }

type cellularUplink struct {
	SignalStat struct {
		RSRP float64 `json:"rsrp"`
		RSRQ float64 `json:"rsrq"`
	} `json:"signalStat"`
}

func (c cellularGatewayCollector) Collect(cc collector.CycleContext) domain.CollectResult {
	return collectDeviceFamily(cc, c.Name(), []string{"cellularGateway"}, func(d domain.Device) error {
		var uplinks []cellularUplink
		if err := cc.Client.Get(cc.Context, "/devices/"+d.Serial+"/cellularGateway/uplink/status", &uplinks); err != nil {
			return err
		}
		for _, u := range uplinks {
			if err := cc.Metrics.Set("meraki_cellular_signal_rsrp_dbm", []string{d.Serial}, u.SignalStat.RSRP, cc.TierPeriod); err != nil {
				return err
			}
			if err := cc.Metrics.Set("meraki_cellular_signal_rsrq_db", []string{d.Serial}, u.SignalStat.RSRQ, cc.TierPeriod); err != nil {
				return err
			}
		}
		return nil
	})
}
