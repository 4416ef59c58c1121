// Package device models device records as the Dirigera hub reports them.
//
// A Record is the JSON document returned by GET /devices/{id}. Its
// common attributes (custom name, model, firmware) are decoded eagerly;
// the type-specific attributes stay raw until a caller asks for them
// through one of the typed accessors:
//
//	rec, err := device.ParseRecord(body)
//	if err != nil {
//	    return err
//	}
//	attrs, err := rec.Light()
//
// The vendor type strings the hub uses ("light", "outlet", "motionSensor"
// and so on) are the Type constants in types.go.
package device
