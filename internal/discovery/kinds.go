package discovery

import (
	"fmt"

	"github.com/nerrad567/gray-logic-dirigera/internal/device"
	"github.com/nerrad567/gray-logic-dirigera/internal/entity"
)

// deviceKind is one case of the closed set of vendor device kinds. The
// unexported methods keep the set sealed to this package.
type deviceKind interface {
	category() entity.Category
	construct(ctl entity.Controller, rec *device.Record) (entity.Entity, error)
}

type (
	lightKind       struct{}
	outletKind      struct{}
	airPurifierKind struct{}
	blindsKind      struct{}
	motionKind      struct{}
	lightSensorKind struct{}
	openCloseKind   struct{}
	waterKind       struct{}

	// unsupportedKind is recognised but has no entity implementation.
	unsupportedKind struct{ cat entity.Category }
)

// kinds maps every vendor type the hub reports to its kind.
var kinds = map[device.Type]deviceKind{
	device.TypeLight:             lightKind{},
	device.TypeOutlet:            outletKind{},
	device.TypeAirPurifier:       airPurifierKind{},
	device.TypeBlinds:            blindsKind{},
	device.TypeEnvironmentSensor: unsupportedKind{cat: entity.CategorySensor},
	device.TypeController:        unsupportedKind{cat: entity.CategorySensor},
	device.TypeMotionSensor:      motionKind{},
	device.TypeOccupancySensor:   motionKind{},
	device.TypeLightSensor:       lightSensorKind{},
	device.TypeOpenCloseSensor:   openCloseKind{},
	device.TypeWaterSensor:       waterKind{},
}

func (lightKind) category() entity.Category { return entity.CategoryLight }
func (lightKind) construct(ctl entity.Controller, rec *device.Record) (entity.Entity, error) {
	return entity.NewLight(ctl, rec)
}

func (outletKind) category() entity.Category { return entity.CategorySwitch }
func (outletKind) construct(ctl entity.Controller, rec *device.Record) (entity.Entity, error) {
	return entity.NewOutletSwitch(entity.NewDevice(ctl, rec), rec)
}

func (airPurifierKind) category() entity.Category { return entity.CategoryFan }
func (airPurifierKind) construct(ctl entity.Controller, rec *device.Record) (entity.Entity, error) {
	return entity.NewAirPurifierFan(entity.NewDevice(ctl, rec), rec)
}

func (blindsKind) category() entity.Category { return entity.CategoryCover }
func (blindsKind) construct(ctl entity.Controller, rec *device.Record) (entity.Entity, error) {
	return entity.NewBlindsCover(entity.NewDevice(ctl, rec), rec)
}

func (motionKind) category() entity.Category { return entity.CategoryBinarySensor }
func (motionKind) construct(ctl entity.Controller, rec *device.Record) (entity.Entity, error) {
	return entity.NewMotionSensor(entity.NewDevice(ctl, rec), rec)
}

func (lightSensorKind) category() entity.Category { return entity.CategorySensor }
func (lightSensorKind) construct(ctl entity.Controller, rec *device.Record) (entity.Entity, error) {
	return entity.NewIlluminanceSensor(entity.NewDevice(ctl, rec), rec)
}

func (openCloseKind) category() entity.Category { return entity.CategoryBinarySensor }
func (openCloseKind) construct(ctl entity.Controller, rec *device.Record) (entity.Entity, error) {
	return entity.NewOpenCloseSensor(entity.NewDevice(ctl, rec), rec)
}

func (waterKind) category() entity.Category { return entity.CategoryBinarySensor }
func (waterKind) construct(ctl entity.Controller, rec *device.Record) (entity.Entity, error) {
	return entity.NewWaterLeakSensor(entity.NewDevice(ctl, rec), rec)
}

func (k unsupportedKind) category() entity.Category { return k.cat }
func (unsupportedKind) construct(_ entity.Controller, rec *device.Record) (entity.Entity, error) {
	return nil, fmt.Errorf("%w: %s (%s)", ErrUnsupportedDevice, rec.ID, rec.DeviceType)
}

// CategoryFor returns the host category for a vendor type.
func CategoryFor(vendorType string) (entity.Category, bool) {
	k, ok := kinds[device.Type(vendorType)]
	if !ok {
		return "", false
	}
	return k.category(), true
}

// BuildEntity constructs the entity for rec using its reported device
// type. It is used at startup, when the bridge builds entities for every
// device the hub already has.
func BuildEntity(ctl entity.Controller, rec *device.Record) (entity.Entity, error) {
	k, ok := kinds[rec.DeviceType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnmappedType, rec.DeviceType)
	}
	return k.construct(ctl, rec)
}
