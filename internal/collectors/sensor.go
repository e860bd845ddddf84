package collectors

import (
	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/collector"
	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/domain"
)

// sensorCollector emits the two most commonly dashboarded environmental
// sensor readings: temperature and humidity.
type sensorCollector struct{}

func (sensorCollector) Name() string      { return "device.sensor" }
func (sensorCollector) Tier() domain.Tier { return domain.TierMedium }

type sensorReading struct {
	Temperature *float64 `json:"temperatureCelsius"`
	Humidity    *float64 `json:"humidityPercent"`
}

func (s sensorCollector) Collect(cc collector.CycleContext) domain.CollectResult {
	return collectDeviceFamily(cc, s.Name(), []string{"sensor"}, func(d domain.Device) error {
		var reading sensorReading
		if err := cc.Client.Get(cc.Context, "/devices/"+d.Serial+"/sensor/readings/latest", &reading); err != nil {
			return err
		}
		if reading.Temperature != nil {
			if err := cc.Metrics.Set("meraki_sensor_temperature_celsius", []string{d.Serial}, *reading.Temperature, cc.TierPeriod); err != nil {
				return err
			}
		}
		if reading.Humidity != nil {
			if err := cc.Metrics.Set("meraki_sensor_humidity_percent", []string{d.Serial}, *reading.Humidity, cc.TierPeriod); err != nil {
				return err
			}
		}
		return nil
	})
}
