package entity

import (
	"fmt"

	"github.com/nerrad567/gray-logic-dirigera/internal/device"
)

// MotionSensor is a motion or occupancy sensor.
type MotionSensor struct {
	*Device
	attrs device.MotionSensorAttributes
}

// NewMotionSensor builds a binary sensor from a wrapped motion or
// occupancy sensor.
func NewMotionSensor(dev *Device, rec *device.Record) (*MotionSensor, error) {
	attrs, err := rec.MotionSensor()
	if err != nil {
		return nil, fmt.Errorf("building motion sensor %s: %w", rec.ID, err)
	}
	return &MotionSensor{Device: dev, attrs: attrs}, nil
}

// Category implements Entity.
func (m *MotionSensor) Category() Category { return CategoryBinarySensor }

// State implements Entity.
func (m *MotionSensor) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := State{"detected": m.attrs.IsDetected}
	if m.attrs.IsOn != nil {
		s["enabled"] = *m.attrs.IsOn
	}
	if m.attrs.LightLevel != nil {
		s["light_level"] = *m.attrs.LightLevel
	}
	battery(s, m.attrs.BatteryPercentage)
	return s
}

// ApplyAttributes implements Entity.
func (m *MotionSensor) ApplyAttributes(attrs map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mergeLocked(&m.attrs, attrs)
}

// OpenCloseSensor is a door or window contact.
type OpenCloseSensor struct {
	*Device
	attrs device.OpenCloseSensorAttributes
}

// NewOpenCloseSensor builds a binary sensor from a wrapped contact sensor.
func NewOpenCloseSensor(dev *Device, rec *device.Record) (*OpenCloseSensor, error) {
	attrs, err := rec.OpenCloseSensor()
	if err != nil {
		return nil, fmt.Errorf("building open/close sensor %s: %w", rec.ID, err)
	}
	return &OpenCloseSensor{Device: dev, attrs: attrs}, nil
}

// Category implements Entity.
func (o *OpenCloseSensor) Category() Category { return CategoryBinarySensor }

// State implements Entity.
func (o *OpenCloseSensor) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()

	s := State{"open": o.attrs.IsOpen}
	battery(s, o.attrs.BatteryPercentage)
	return s
}

// ApplyAttributes implements Entity.
func (o *OpenCloseSensor) ApplyAttributes(attrs map[string]any) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.mergeLocked(&o.attrs, attrs)
}

// WaterLeakSensor is a water leak sensor.
type WaterLeakSensor struct {
	*Device
	attrs device.WaterSensorAttributes
}

// NewWaterLeakSensor builds a binary sensor from a wrapped leak sensor.
func NewWaterLeakSensor(dev *Device, rec *device.Record) (*WaterLeakSensor, error) {
	attrs, err := rec.WaterSensor()
	if err != nil {
		return nil, fmt.Errorf("building water sensor %s: %w", rec.ID, err)
	}
	return &WaterLeakSensor{Device: dev, attrs: attrs}, nil
}

// Category implements Entity.
func (w *WaterLeakSensor) Category() Category { return CategoryBinarySensor }

// State implements Entity.
func (w *WaterLeakSensor) State() State {
	w.mu.RLock()
	defer w.mu.RUnlock()

	s := State{"leak": w.attrs.WaterLeakDetected}
	battery(s, w.attrs.BatteryPercentage)
	return s
}

// ApplyAttributes implements Entity.
func (w *WaterLeakSensor) ApplyAttributes(attrs map[string]any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.mergeLocked(&w.attrs, attrs)
}
