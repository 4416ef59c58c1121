package entity

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"slices"
	"sync"

	"github.com/nerrad567/gray-logic-dirigera/internal/device"
)

// Entity is a host-side object backed by one hub device.
type Entity interface {
	// UniqueID is the hub device id.
	UniqueID() string
	Name() string
	Category() Category
	VendorType() device.Type
	DeviceInfo() DeviceInfo

	// Available mirrors the hub's isReachable flag.
	Available() bool
	SetAvailable(available bool)

	// State returns a snapshot of the entity's current state.
	State() State

	// ApplyAttributes merges a partial attribute update from the hub.
	ApplyAttributes(attrs map[string]any) error
}

// Commandable is implemented by entities that accept commands.
type Commandable interface {
	Entity
	HandleCommand(ctx context.Context, cmd Command) error
}

// Controller writes attributes to the hub.
type Controller interface {
	SetAttributes(ctx context.Context, deviceID string, attrs map[string]any) error
}

// State is an entity state snapshot, keyed by host attribute name.
type State map[string]any

// Command is a command payload keyed by host attribute name, e.g.
// {"on": true, "level": 40}.
type Command map[string]any

// DeviceInfo describes the physical device behind an entity.
type DeviceInfo struct {
	Identifier      string `json:"identifier"`
	Name            string `json:"name"`
	Manufacturer    string `json:"manufacturer,omitempty"`
	Model           string `json:"model,omitempty"`
	FirmwareVersion string `json:"firmware_version,omitempty"`
	SerialNumber    string `json:"serial_number,omitempty"`
	Room            string `json:"room,omitempty"`
	ViaDevice       string `json:"via_device"`
}

// viaDevice names the hub in DeviceInfo.
const viaDevice = "dirigera"

// base holds identity and availability shared by every entity.
type base struct {
	mu         sync.RWMutex
	id         string
	vendorType device.Type
	name       string
	info       DeviceInfo
	available  bool
}

func newBase(rec *device.Record) base {
	return base{
		id:         rec.ID,
		vendorType: rec.DeviceType,
		name:       rec.DisplayName(),
		available:  rec.IsReachable,
		info: DeviceInfo{
			Identifier:      rec.ID,
			Name:            rec.DisplayName(),
			Manufacturer:    rec.Attributes.Manufacturer,
			Model:           rec.Attributes.Model,
			FirmwareVersion: rec.Attributes.FirmwareVersion,
			SerialNumber:    rec.Attributes.SerialNumber,
			Room:            rec.RoomName(),
			ViaDevice:       viaDevice,
		},
	}
}

func (b *base) UniqueID() string        { return b.id }
func (b *base) VendorType() device.Type { return b.vendorType }

func (b *base) Name() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.name
}

func (b *base) DeviceInfo() DeviceInfo {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.info
}

func (b *base) Available() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.available
}

func (b *base) SetAvailable(available bool) {
	b.mu.Lock()
	b.available = available
	b.mu.Unlock()
}

// mergeLocked overlays attrs onto dst (a pointer to an attribute struct)
// and picks up renames. The update is decoded into a deep copy of dst and
// committed, together with any rename, only when the whole update decodes.
// Caller holds b.mu for writing.
func (b *base) mergeLocked(dst any, attrs map[string]any) error {
	data, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("encoding attributes: %w", err)
	}
	current, err := json.Marshal(dst)
	if err != nil {
		return fmt.Errorf("encoding current attributes: %w", err)
	}

	target := reflect.ValueOf(dst).Elem()
	next := reflect.New(target.Type())
	if err := json.Unmarshal(current, next.Interface()); err != nil {
		return fmt.Errorf("copying attributes: %w", err)
	}
	if err := json.Unmarshal(data, next.Interface()); err != nil {
		return fmt.Errorf("%w: %w", device.ErrInvalidAttributes, err)
	}

	target.Set(next.Elem())
	if name, ok := attrs["customName"].(string); ok && name != "" {
		b.name = name
		b.info.Name = name
	}
	return nil
}

// boolArg reads a boolean command value.
func boolArg(cmd Command, key string) (bool, bool, error) {
	v, ok := cmd[key]
	if !ok {
		return false, false, nil
	}
	b, isBool := v.(bool)
	if !isBool {
		return false, true, fmt.Errorf("%w: %s must be a boolean", ErrInvalidCommand, key)
	}
	return b, true, nil
}

// intArg reads an integer command value within [lo, hi]. JSON numbers
// arrive as float64.
func intArg(cmd Command, key string, lo, hi int) (int, bool, error) {
	v, ok := cmd[key]
	if !ok {
		return 0, false, nil
	}
	var n int
	switch val := v.(type) {
	case int:
		n = val
	case float64:
		if val != float64(int(val)) {
			return 0, true, fmt.Errorf("%w: %s must be an integer", ErrInvalidCommand, key)
		}
		n = int(val)
	default:
		return 0, true, fmt.Errorf("%w: %s must be a number", ErrInvalidCommand, key)
	}
	if n < lo || n > hi {
		return 0, true, fmt.Errorf("%w: %s must be between %d and %d", ErrInvalidCommand, key, lo, hi)
	}
	return n, true, nil
}

// rejectUnknown returns ErrUnsupportedCommand for keys outside allowed.
func rejectUnknown(cmd Command, allowed ...string) error {
	if len(cmd) == 0 {
		return fmt.Errorf("%w: empty command", ErrInvalidCommand)
	}
	for key := range cmd {
		if !slices.Contains(allowed, key) {
			return fmt.Errorf("%w: %q", ErrUnsupportedCommand, key)
		}
	}
	return nil
}
