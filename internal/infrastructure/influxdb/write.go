package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by the bridge.
const (
	MeasurementDiscovery   = "dirigera_discovery"
	MeasurementEntityState = "dirigera_entity_state"
)

// DiscoveryPoint describes one finished discovery attempt.
type DiscoveryPoint struct {
	DeviceID   string
	VendorType string
	Category   string
	Outcome    string
	Duration   time.Duration
	Timestamp  time.Time
}

// WriteDiscovery records a discovery attempt. Non-blocking.
//
// The outcome and category are tags so dashboards can group by them; the
// device id is a tag as well because the device population of a single
// hub is small.
func (c *Client) WriteDiscovery(p DiscoveryPoint) {
	c.writePoint(
		MeasurementDiscovery,
		map[string]string{
			"device_id":   p.DeviceID,
			"vendor_type": p.VendorType,
			"category":    p.Category,
			"outcome":     p.Outcome,
		},
		map[string]interface{}{
			"duration_ms": p.Duration.Milliseconds(),
			"success":     p.Outcome == "registered",
		},
		p.Timestamp,
	)
}

// WriteEntityState records the numeric and boolean parts of an entity's
// state. Strings and nested values are dropped; nothing is written when no
// field survives.
func (c *Client) WriteEntityState(entityID, category string, state map[string]any) {
	fields := telemetryFields(state)
	if len(fields) == 0 {
		return
	}
	c.writePoint(
		MeasurementEntityState,
		map[string]string{
			"entity_id": entityID,
			"category":  category,
		},
		fields,
		time.Time{},
	)
}

// writePoint queues one point. A zero ts is stamped with the current
// time. Points are dropped while disconnected.
func (c *Client) writePoint(measurement string, tags map[string]string, fields map[string]interface{}, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	if ts.IsZero() {
		ts = time.Now()
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, ts))
}

// telemetryFields keeps the values line protocol can store as fields.
func telemetryFields(state map[string]any) map[string]interface{} {
	fields := make(map[string]interface{}, len(state))
	for k, v := range state {
		switch val := v.(type) {
		case bool, int, int64, float64:
			fields[k] = val
		case *int:
			if val != nil {
				fields[k] = *val
			}
		case *float64:
			if val != nil {
				fields[k] = *val
			}
		case *bool:
			if val != nil {
				fields[k] = *val
			}
		}
	}
	return fields
}
