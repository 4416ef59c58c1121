package hub

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"slices"

	"github.com/nerrad567/gray-logic-dirigera/internal/device"
)

// attributePatch is the hub's PATCH body: a list of attribute sets.
type attributePatch struct {
	Attributes map[string]any `json:"attributes"`
}

func devicePath(id string) string {
	return "/devices/" + url.PathEscape(id)
}

// GetDevice fetches one device record.
func (c *Client) GetDevice(ctx context.Context, id string) (*device.Record, error) {
	var rec device.Record
	if err := c.get(ctx, devicePath(id), &rec); err != nil {
		return nil, fmt.Errorf("fetching device %s: %w", id, err)
	}
	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("fetching device %s: %w", id, err)
	}
	return &rec, nil
}

// ListDevices fetches every device paired with the hub.
func (c *Client) ListDevices(ctx context.Context) ([]*device.Record, error) {
	var recs []*device.Record
	if err := c.get(ctx, "/devices", &recs); err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	return recs, nil
}

// ListDevicesOfType returns the devices whose deviceType matches any of types.
func (c *Client) ListDevicesOfType(ctx context.Context, types ...device.Type) ([]*device.Record, error) {
	all, err := c.ListDevices(ctx)
	if err != nil {
		return nil, err
	}
	var out []*device.Record
	for _, rec := range all {
		if slices.Contains(types, rec.DeviceType) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// ListControllers returns remotes and shortcut buttons.
func (c *Client) ListControllers(ctx context.Context) ([]*device.Record, error) {
	return c.ListDevicesOfType(ctx, device.TypeController)
}

// ListMotionSensors returns motion and occupancy sensors. Some sensors
// (MYGGSPRAY) report as occupancySensor.
func (c *Client) ListMotionSensors(ctx context.Context) ([]*device.Record, error) {
	return c.ListDevicesOfType(ctx, device.TypeMotionSensor, device.TypeOccupancySensor)
}

// GetMotionSensor fetches a device and returns ErrWrongDeviceType unless it
// is a motion or occupancy sensor.
func (c *Client) GetMotionSensor(ctx context.Context, id string) (*device.Record, error) {
	rec, err := c.GetDevice(ctx, id)
	if err != nil {
		return nil, err
	}
	if !rec.DeviceType.IsMotion() {
		return nil, fmt.Errorf("%w: %s is %s", ErrWrongDeviceType, id, rec.DeviceType)
	}
	return rec, nil
}

// SetAttributes writes attrs to a device.
func (c *Client) SetAttributes(ctx context.Context, id string, attrs map[string]any) error {
	body := []attributePatch{{Attributes: attrs}}
	if err := c.do(ctx, http.MethodPatch, devicePath(id), body, nil); err != nil {
		return fmt.Errorf("updating device %s: %w", id, err)
	}
	return nil
}

// SetName renames a device. The device must list customName in canReceive.
func (c *Client) SetName(ctx context.Context, id, name string) error {
	rec, err := c.GetDevice(ctx, id)
	if err != nil {
		return err
	}
	if !rec.Capabilities.Accepts("customName") {
		return fmt.Errorf("%w: %s", ErrNameNotSupported, id)
	}
	return c.SetAttributes(ctx, id, map[string]any{"customName": name})
}
