package device

// LightAttributes are the attributes of a light.
type LightAttributes struct {
	IsOn                bool     `json:"isOn"`
	LightLevel          *int     `json:"lightLevel,omitempty"`
	ColorMode           string   `json:"colorMode,omitempty"`
	ColorTemperature    *int     `json:"colorTemperature,omitempty"`
	ColorTemperatureMin *int     `json:"colorTemperatureMin,omitempty"`
	ColorTemperatureMax *int     `json:"colorTemperatureMax,omitempty"`
	ColorHue            *float64 `json:"colorHue,omitempty"`
	ColorSaturation     *float64 `json:"colorSaturation,omitempty"`
}

// OutletAttributes are the attributes of a smart plug.
type OutletAttributes struct {
	IsOn                bool     `json:"isOn"`
	CurrentActivePower  *float64 `json:"currentActivePower,omitempty"`
	CurrentVoltage      *float64 `json:"currentVoltage,omitempty"`
	TotalEnergyConsumed *float64 `json:"totalEnergyConsumed,omitempty"`
	StartupOnOff        string   `json:"startupOnOff,omitempty"`
}

// AirPurifierAttributes are the attributes of an air purifier.
type AirPurifierAttributes struct {
	FanMode           string `json:"fanMode"`
	MotorState        int    `json:"motorState"`
	MotorRuntime      int    `json:"motorRuntime"`
	FilterElapsedTime int    `json:"filterElapsedTime"`
	FilterLifetime    int    `json:"filterLifetime"`
	FilterAlarmStatus bool   `json:"filterAlarmStatus"`
	CurrentPM25       *int   `json:"currentPM25,omitempty"`
	StatusLight       bool   `json:"statusLight"`
	ChildLock         bool   `json:"childLock"`
}

// BlindsAttributes are the attributes of a motorised blind.
type BlindsAttributes struct {
	BlindsCurrentLevel int    `json:"blindsCurrentLevel"`
	BlindsTargetLevel  int    `json:"blindsTargetLevel"`
	BlindsState        string `json:"blindsState,omitempty"`
	BatteryPercentage  *int   `json:"batteryPercentage,omitempty"`
}

// MotionSensorAttributes are shared by motion and occupancy sensors.
// IsOn is absent on some firmware.
type MotionSensorAttributes struct {
	IsOn              *bool    `json:"isOn,omitempty"`
	IsDetected        bool     `json:"isDetected"`
	BatteryPercentage *int     `json:"batteryPercentage,omitempty"`
	LightLevel        *float64 `json:"lightLevel,omitempty"`
}

// LightSensorAttributes are the attributes of an illuminance sensor.
type LightSensorAttributes struct {
	Illuminance       *float64 `json:"illuminance,omitempty"`
	BatteryPercentage *int     `json:"batteryPercentage,omitempty"`
}

// OpenCloseSensorAttributes are the attributes of a door/window contact.
type OpenCloseSensorAttributes struct {
	IsOpen            bool `json:"isOpen"`
	BatteryPercentage *int `json:"batteryPercentage,omitempty"`
}

// WaterSensorAttributes are the attributes of a leak sensor.
type WaterSensorAttributes struct {
	WaterLeakDetected bool `json:"waterLeakDetected"`
	BatteryPercentage *int `json:"batteryPercentage,omitempty"`
}

// ControllerAttributes are the attributes of a remote or shortcut button.
type ControllerAttributes struct {
	IsOn              *bool  `json:"isOn,omitempty"`
	BatteryPercentage *int   `json:"batteryPercentage,omitempty"`
	SwitchLabel       string `json:"switchLabel,omitempty"`
}

// Light decodes the record's attributes as a light.
func (r *Record) Light() (LightAttributes, error) {
	var a LightAttributes
	err := r.DecodeAttributes(&a)
	return a, err
}

// Outlet decodes the record's attributes as an outlet.
func (r *Record) Outlet() (OutletAttributes, error) {
	var a OutletAttributes
	err := r.DecodeAttributes(&a)
	return a, err
}

// AirPurifier decodes the record's attributes as an air purifier.
func (r *Record) AirPurifier() (AirPurifierAttributes, error) {
	var a AirPurifierAttributes
	err := r.DecodeAttributes(&a)
	return a, err
}

// Blinds decodes the record's attributes as blinds.
func (r *Record) Blinds() (BlindsAttributes, error) {
	var a BlindsAttributes
	err := r.DecodeAttributes(&a)
	return a, err
}

// MotionSensor decodes the record's attributes as a motion or occupancy sensor.
func (r *Record) MotionSensor() (MotionSensorAttributes, error) {
	var a MotionSensorAttributes
	err := r.DecodeAttributes(&a)
	return a, err
}

// LightSensor decodes the record's attributes as an illuminance sensor.
func (r *Record) LightSensor() (LightSensorAttributes, error) {
	var a LightSensorAttributes
	err := r.DecodeAttributes(&a)
	return a, err
}

// OpenCloseSensor decodes the record's attributes as a contact sensor.
func (r *Record) OpenCloseSensor() (OpenCloseSensorAttributes, error) {
	var a OpenCloseSensorAttributes
	err := r.DecodeAttributes(&a)
	return a, err
}

// WaterSensor decodes the record's attributes as a leak sensor.
func (r *Record) WaterSensor() (WaterSensorAttributes, error) {
	var a WaterSensorAttributes
	err := r.DecodeAttributes(&a)
	return a, err
}

// Controller decodes the record's attributes as a controller.
func (r *Record) Controller() (ControllerAttributes, error) {
	var a ControllerAttributes
	err := r.DecodeAttributes(&a)
	return a, err
}
