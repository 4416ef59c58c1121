package device

// Type is the hub's deviceType string.
type Type string

// Vendor device types reported by the hub.
const (
	TypeLight             Type = "light"
	TypeOutlet            Type = "outlet"
	TypeAirPurifier       Type = "airPurifier"
	TypeBlinds            Type = "blinds"
	TypeEnvironmentSensor Type = "environmentSensor"
	TypeController        Type = "controller"
	TypeMotionSensor      Type = "motionSensor"
	TypeOccupancySensor   Type = "occupancySensor"
	TypeLightSensor       Type = "lightSensor"
	TypeOpenCloseSensor   Type = "openCloseSensor"
	TypeWaterSensor       Type = "waterSensor"
)

// AllTypes returns every vendor type the bridge knows about, including
// those it recognises but cannot expose.
func AllTypes() []Type {
	return []Type{
		TypeLight,
		TypeOutlet,
		TypeAirPurifier,
		TypeBlinds,
		TypeEnvironmentSensor,
		TypeController,
		TypeMotionSensor,
		TypeOccupancySensor,
		TypeLightSensor,
		TypeOpenCloseSensor,
		TypeWaterSensor,
	}
}

// String implements fmt.Stringer.
func (t Type) String() string { return string(t) }

// IsMotion reports whether the type is one of the two presence sensors.
func (t Type) IsMotion() bool {
	return t == TypeMotionSensor || t == TypeOccupancySensor
}
