package entity

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/gray-logic-dirigera/internal/device"
)

// errNoController is returned when a command arrives for an entity built
// without a hub connection.
var errNoController = errors.New("entity: no hub controller")

// Device wraps a hub record for every entity kind except lights. It owns
// identity, availability and the write path to the hub.
type Device struct {
	base
	hub Controller
}

// NewDevice wraps rec. hub may be nil for read-only use.
func NewDevice(hub Controller, rec *device.Record) *Device {
	return &Device{base: newBase(rec), hub: hub}
}

// write sends attrs to the hub and, once accepted, merges them into dst.
func (d *Device) write(ctx context.Context, dst any, attrs map[string]any) error {
	return writeThrough(ctx, &d.base, d.hub, dst, attrs)
}

// writeThrough is the shared write path for lights and wrapped devices.
// Local state is updated only after the hub accepts the change; the hub
// later confirms it with a state event.
func writeThrough(ctx context.Context, b *base, hub Controller, dst any, attrs map[string]any) error {
	if hub == nil {
		return errNoController
	}
	if err := hub.SetAttributes(ctx, b.id, attrs); err != nil {
		return fmt.Errorf("setting %v on %s: %w", keys(attrs), b.id, err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mergeLocked(dst, attrs)
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// battery adds the battery level to s when known.
func battery(s State, pct *int) {
	if pct != nil {
		s["battery"] = *pct
	}
}
