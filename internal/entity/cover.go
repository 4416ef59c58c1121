package entity

import (
	"context"
	"fmt"

	"github.com/nerrad567/gray-logic-dirigera/internal/device"
)

// BlindsCover exposes motorised blinds as a cover.
//
// The hub's level is percent closed; the cover's position is percent
// open, so position = 100 - level.
type BlindsCover struct {
	*Device
	attrs device.BlindsAttributes
}

// NewBlindsCover builds a cover entity from wrapped blinds.
func NewBlindsCover(dev *Device, rec *device.Record) (*BlindsCover, error) {
	attrs, err := rec.Blinds()
	if err != nil {
		return nil, fmt.Errorf("building blinds %s: %w", rec.ID, err)
	}
	return &BlindsCover{Device: dev, attrs: attrs}, nil
}

// Category implements Entity.
func (c *BlindsCover) Category() Category { return CategoryCover }

// State implements Entity.
func (c *BlindsCover) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := State{
		"position":        100 - c.attrs.BlindsCurrentLevel,
		"target_position": 100 - c.attrs.BlindsTargetLevel,
		"closed":          c.attrs.BlindsCurrentLevel == 100,
		"moving":          c.attrs.BlindsCurrentLevel != c.attrs.BlindsTargetLevel,
	}
	battery(s, c.attrs.BatteryPercentage)
	return s
}

// ApplyAttributes implements Entity.
func (c *BlindsCover) ApplyAttributes(attrs map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mergeLocked(&c.attrs, attrs)
}

// HandleCommand accepts "position" (0-100, percent open) or "action"
// (open|close|stop).
func (c *BlindsCover) HandleCommand(ctx context.Context, cmd Command) error {
	if err := rejectUnknown(cmd, "position", "action"); err != nil {
		return err
	}
	if len(cmd) > 1 {
		return fmt.Errorf("%w: position and action are exclusive", ErrInvalidCommand)
	}

	if pos, ok, err := intArg(cmd, "position", 0, 100); err != nil {
		return err
	} else if ok {
		return c.write(ctx, &c.attrs, map[string]any{"blindsTargetLevel": 100 - pos})
	}

	switch cmd["action"] {
	case "open":
		return c.write(ctx, &c.attrs, map[string]any{"blindsTargetLevel": 0})
	case "close":
		return c.write(ctx, &c.attrs, map[string]any{"blindsTargetLevel": 100})
	case "stop":
		return c.write(ctx, &c.attrs, map[string]any{"blindsState": "stopped"})
	}
	return fmt.Errorf("%w: action must be open, close or stop", ErrInvalidCommand)
}
