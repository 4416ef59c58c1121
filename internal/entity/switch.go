package entity

import (
	"context"
	"fmt"

	"github.com/nerrad567/gray-logic-dirigera/internal/device"
)

// OutletSwitch is a smart plug.
type OutletSwitch struct {
	*Device
	attrs device.OutletAttributes
}

// NewOutletSwitch builds a switch entity from a wrapped outlet.
func NewOutletSwitch(dev *Device, rec *device.Record) (*OutletSwitch, error) {
	attrs, err := rec.Outlet()
	if err != nil {
		return nil, fmt.Errorf("building outlet %s: %w", rec.ID, err)
	}
	return &OutletSwitch{Device: dev, attrs: attrs}, nil
}

// Category implements Entity.
func (s *OutletSwitch) Category() Category { return CategorySwitch }

// State implements Entity.
func (s *OutletSwitch) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := State{"on": s.attrs.IsOn}
	if s.attrs.CurrentActivePower != nil {
		st["power_watts"] = *s.attrs.CurrentActivePower
	}
	if s.attrs.TotalEnergyConsumed != nil {
		st["energy_kwh"] = *s.attrs.TotalEnergyConsumed
	}
	return st
}

// ApplyAttributes implements Entity.
func (s *OutletSwitch) ApplyAttributes(attrs map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mergeLocked(&s.attrs, attrs)
}

// HandleCommand accepts "on" (bool).
func (s *OutletSwitch) HandleCommand(ctx context.Context, cmd Command) error {
	if err := rejectUnknown(cmd, "on"); err != nil {
		return err
	}
	on, _, err := boolArg(cmd, "on")
	if err != nil {
		return err
	}
	return s.write(ctx, &s.attrs, map[string]any{"isOn": on})
}
