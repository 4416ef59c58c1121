package entity

import (
	"context"
	"fmt"

	"github.com/nerrad567/gray-logic-dirigera/internal/device"
)

// Default colour temperature bounds (kelvin) when the bulb reports none.
const (
	defaultMinKelvin = 2202
	defaultMaxKelvin = 4000
)

// Light is a dimmable, optionally tunable, hub light. Unlike the other
// kinds it is an entity directly and keeps its own hub handle.
type Light struct {
	base
	hub   Controller
	attrs device.LightAttributes
}

// NewLight builds a light entity from a hub record.
func NewLight(hub Controller, rec *device.Record) (*Light, error) {
	attrs, err := rec.Light()
	if err != nil {
		return nil, fmt.Errorf("building light %s: %w", rec.ID, err)
	}
	return &Light{base: newBase(rec), hub: hub, attrs: attrs}, nil
}

// Category implements Entity.
func (l *Light) Category() Category { return CategoryLight }

// State implements Entity.
func (l *Light) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()

	s := State{"on": l.attrs.IsOn}
	if l.attrs.LightLevel != nil {
		s["level"] = *l.attrs.LightLevel
	}
	if l.attrs.ColorTemperature != nil {
		s["color_temperature"] = *l.attrs.ColorTemperature
	}
	if l.attrs.ColorMode != "" {
		s["color_mode"] = l.attrs.ColorMode
	}
	return s
}

// ApplyAttributes implements Entity.
func (l *Light) ApplyAttributes(attrs map[string]any) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mergeLocked(&l.attrs, attrs)
}

// HandleCommand accepts "on" (bool), "level" (1-100) and
// "color_temperature" (kelvin, within the bulb's range).
func (l *Light) HandleCommand(ctx context.Context, cmd Command) error {
	if err := rejectUnknown(cmd, "on", "level", "color_temperature"); err != nil {
		return err
	}

	minK, maxK := l.kelvinRange()
	on, hasOn, err := boolArg(cmd, "on")
	if err != nil {
		return err
	}
	level, hasLevel, err := intArg(cmd, "level", 1, 100)
	if err != nil {
		return err
	}
	kelvin, hasKelvin, err := intArg(cmd, "color_temperature", minK, maxK)
	if err != nil {
		return err
	}

	// The hub takes one attribute per patch for lights.
	if hasOn {
		if err := writeThrough(ctx, &l.base, l.hub, &l.attrs, map[string]any{"isOn": on}); err != nil {
			return err
		}
	}
	if hasLevel {
		if err := writeThrough(ctx, &l.base, l.hub, &l.attrs, map[string]any{"lightLevel": level}); err != nil {
			return err
		}
	}
	if hasKelvin {
		if err := writeThrough(ctx, &l.base, l.hub, &l.attrs, map[string]any{"colorTemperature": kelvin}); err != nil {
			return err
		}
	}
	return nil
}

func (l *Light) kelvinRange() (int, int) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	minK, maxK := defaultMinKelvin, defaultMaxKelvin
	// The hub reports the warm end as colorTemperatureMax; normalise.
	a, b := l.attrs.ColorTemperatureMin, l.attrs.ColorTemperatureMax
	if a != nil && b != nil {
		minK, maxK = min(*a, *b), max(*a, *b)
	}
	return minK, maxK
}
