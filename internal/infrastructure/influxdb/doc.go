// Package influxdb writes bridge telemetry to InfluxDB v2.
//
// Two measurements are produced: dirigera_discovery, one point per
// discovery attempt, and dirigera_entity_state, the numeric part of each
// entity state change (brightness, power, PM2.5, illuminance, battery).
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry off
//	}
//	defer client.Close()
//
//	client.WriteEntityState("abc_1", "light", map[string]any{"level": 80, "on": true})
//
// Writes are non-blocking and batched per batch_size and flush_interval.
// Batch failures arrive on the SetOnError callback.
package influxdb
