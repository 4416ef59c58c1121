// Package entity defines the host-side objects the bridge exposes for hub
// devices.
//
// Every entity belongs to exactly one Category (light, switch, fan, cover,
// sensor, binary_sensor) and is identified by the hub device id. Lights
// are entities in their own right; every other kind wraps a Device, the
// intermediate object that owns the hub record and the write path.
//
// # Thread Safety
//
// Entities are read by the API and MQTT publishers while the event
// listener applies attribute changes, so all accessors lock.
package entity
