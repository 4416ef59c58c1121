package device

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

// unnamed is used where a device has no custom name.
const unnamed = "unnamed"

// Record is a device as returned by the hub.
type Record struct {
	ID           string       `json:"id"`
	Kind         string       `json:"type"`
	DeviceType   Type         `json:"deviceType"`
	IsReachable  bool         `json:"isReachable"`
	LastSeen     *time.Time   `json:"lastSeen,omitempty"`
	CreatedAt    *time.Time   `json:"createdAt,omitempty"`
	Capabilities Capabilities `json:"capabilities"`
	Room         *Room        `json:"room,omitempty"`
	Attributes   Attributes   `json:"attributes"`

	// rawAttributes keeps the full attributes object for typed decoding.
	rawAttributes json.RawMessage
}

// Capabilities lists the attributes a device emits and accepts.
type Capabilities struct {
	CanSend    []string `json:"canSend"`
	CanReceive []string `json:"canReceive"`
}

// Accepts reports whether attribute can be written to the device.
func (c Capabilities) Accepts(attribute string) bool {
	return slices.Contains(c.CanReceive, attribute)
}

// Room is the hub room a device is assigned to.
type Room struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
	Icon  string `json:"icon,omitempty"`
}

// Attributes holds the attributes every device type carries.
type Attributes struct {
	CustomName      string `json:"customName"`
	Model           string `json:"model"`
	Manufacturer    string `json:"manufacturer"`
	FirmwareVersion string `json:"firmwareVersion"`
	HardwareVersion string `json:"hardwareVersion"`
	SerialNumber    string `json:"serialNumber"`
	ProductCode     string `json:"productCode"`
}

// ParseRecord decodes a hub device document.
func ParseRecord(data []byte) (*Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return &rec, nil
}

// UnmarshalJSON decodes the record and retains the raw attributes.
func (r *Record) UnmarshalJSON(data []byte) error {
	type plain Record
	var aux struct {
		plain
		Attributes json.RawMessage `json:"attributes"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	*r = Record(aux.plain)
	if len(aux.Attributes) > 0 && string(aux.Attributes) != "null" {
		if err := json.Unmarshal(aux.Attributes, &r.Attributes); err != nil {
			return fmt.Errorf("decoding attributes: %w", err)
		}
		r.rawAttributes = aux.Attributes
	}
	return nil
}

// MarshalJSON writes the record back out with its full attribute set.
func (r Record) MarshalJSON() ([]byte, error) {
	type plain Record
	attrs := r.rawAttributes
	if len(attrs) == 0 {
		var err error
		if attrs, err = json.Marshal(r.Attributes); err != nil {
			return nil, err
		}
	}
	return json.Marshal(struct {
		plain
		Attributes json.RawMessage `json:"attributes"`
	}{plain: plain(r), Attributes: attrs})
}

// Validate checks the fields the bridge relies on.
func (r *Record) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidRecord)
	}
	return nil
}

// DisplayName returns the custom name, or "unnamed" when none is set.
func (r *Record) DisplayName() string {
	if r.Attributes.CustomName == "" {
		return unnamed
	}
	return r.Attributes.CustomName
}

// RoomName returns the room name or "".
func (r *Record) RoomName() string {
	if r.Room == nil {
		return ""
	}
	return r.Room.Name
}

// DecodeAttributes decodes the full attributes object into v.
func (r *Record) DecodeAttributes(v any) error {
	if len(r.rawAttributes) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.rawAttributes, v); err != nil {
		return fmt.Errorf("%w: device %s: %w", ErrInvalidAttributes, r.ID, err)
	}
	return nil
}
