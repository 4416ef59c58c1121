package entity

import "fmt"

// Category is a host entity category. Each category has one platform.
type Category string

// Host categories.
const (
	CategoryLight        Category = "light"
	CategorySwitch       Category = "switch"
	CategoryFan          Category = "fan"
	CategoryCover        Category = "cover"
	CategorySensor       Category = "sensor"
	CategoryBinarySensor Category = "binary_sensor"
)

// Categories returns every host category.
func Categories() []Category {
	return []Category{
		CategoryLight,
		CategorySwitch,
		CategoryFan,
		CategoryCover,
		CategorySensor,
		CategoryBinarySensor,
	}
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryLight, CategorySwitch, CategoryFan, CategoryCover, CategorySensor, CategoryBinarySensor:
		return true
	}
	return false
}

// String implements fmt.Stringer.
func (c Category) String() string { return string(c) }

// ParseCategory converts s into a Category.
func ParseCategory(s string) (Category, error) {
	c := Category(s)
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidCategory, s)
	}
	return c, nil
}
