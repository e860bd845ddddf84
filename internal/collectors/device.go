package collectors

import (
	"context"

	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/collector"
	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/domain"
	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/pipeline"
)

// NewDeviceCollector builds the Medium-tier device coordinator, dispatching
// to one sub-collector per device family. Its first child,
// deviceIdentityCollector, emits the identity and status gauges common to
// every device; family sub-collectors add the family-specific signals.
func NewDeviceCollector() *collector.Coordinator {
	coord := collector.NewCoordinator("device", domain.TierMedium)
	coord.AddChild(deviceIdentityCollector{})
	coord.AddChild(wirelessCollector{})
	coord.AddChild(switchCollector{})
	coord.AddChild(applianceCollector{})
	coord.AddChild(cellularGatewayCollector{})
	coord.AddChild(sensorCollector{})
	return coord
}

// deviceIdentityCollector emits the identity and status gauges shared by
// every device family, independent of product type.
type deviceIdentityCollector struct{}

func (deviceIdentityCollector) Name() string      { return "device.identity" }
func (deviceIdentityCollector) Tier() domain.Tier { return domain.TierMedium }

func (deviceIdentityCollector) Collect(cc collector.CycleContext) domain.CollectResult {
	return collectDeviceFamily(cc, "device.identity", nil, func(d domain.Device) error {
		if err := cc.Metrics.SetInfo("meraki_device_info", []string{d.Serial, d.NetworkID, d.Model, d.ProductType}, cc.TierPeriod); err != nil {
			return err
		}
		online := 0.0
		if d.Status == "online" {
			online = 1.0
		}
		return cc.Metrics.Set("meraki_device_status", []string{d.Serial, d.ProductType}, online, cc.TierPeriod)
	})
}

// collectDeviceFamily lists every device across every organization (filtered
// to productTypes when non-empty, via the Inventory Cache so concurrent
// family sub-collectors never duplicate a fetch for the same filter set) and
// applies fn to each, merging per-device failures into a single Partial or
// Failed result rather than aborting the whole family on one bad device.
// Devices run through the batching policy: concurrent within a batch (the
// client's global semaphore bounds in-flight calls), with the cycle's batch
// delay between batches.
func collectDeviceFamily(cc collector.CycleContext, name string, productTypes []string, fn func(domain.Device) error) domain.CollectResult {
	orgs, err := cc.Inventory.ListOrganizations(cc.Context)
	if err != nil {
		return failed(name, cc.Deadline, err)
	}

	result := domain.CollectResult{Outcome: domain.OutcomeOK}
	for _, org := range orgs {
		select {
		case <-cc.Done():
			return result.Merge(failed(name, cc.Deadline, cc.Err()))
		default:
		}

		devices, err := cc.Inventory.ListDevices(cc.Context, org.ID, productTypes)
		if err != nil {
			result = result.Merge(domain.CollectResult{
				Outcome: domain.OutcomePartial,
				Errors:  []domain.ErrorRecord{domain.NewErrorRecord(name, cc.Deadline, err)},
			})
			continue
		}

		errs := pipeline.RunBatched(cc.Context, devices, cc.BatchSize, cc.BatchDelay, func(_ context.Context, d domain.Device) error {
			return fn(d)
		})
		for _, e := range errs {
			result = result.Merge(domain.CollectResult{
				Outcome: domain.OutcomePartial,
				Errors:  []domain.ErrorRecord{domain.NewErrorRecord(name, cc.Deadline, e)},
			})
		}
		result.ItemsProcessed += len(devices) - len(errs)
	}
	return result
}
