package entity

import (
	"fmt"

	"github.com/nerrad567/gray-logic-dirigera/internal/device"
)

// IlluminanceSensor reports ambient light in lux.
type IlluminanceSensor struct {
	*Device
	attrs device.LightSensorAttributes
}

// NewIlluminanceSensor builds a sensor from a wrapped light sensor.
func NewIlluminanceSensor(dev *Device, rec *device.Record) (*IlluminanceSensor, error) {
	attrs, err := rec.LightSensor()
	if err != nil {
		return nil, fmt.Errorf("building light sensor %s: %w", rec.ID, err)
	}
	return &IlluminanceSensor{Device: dev, attrs: attrs}, nil
}

// Category implements Entity.
func (i *IlluminanceSensor) Category() Category { return CategorySensor }

// State implements Entity.
func (i *IlluminanceSensor) State() State {
	i.mu.RLock()
	defer i.mu.RUnlock()

	s := State{}
	if i.attrs.Illuminance != nil {
		s["illuminance"] = *i.attrs.Illuminance
	}
	battery(s, i.attrs.BatteryPercentage)
	return s
}

// ApplyAttributes implements Entity.
func (i *IlluminanceSensor) ApplyAttributes(attrs map[string]any) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.mergeLocked(&i.attrs, attrs)
}
