// Package relay receives device alerts and fans them out as text messages.
package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Payload is the alert body posted by a device.
type Payload struct {
	DeviceID  string   `json:"device_id" validate:"required,lowerhex"`
	Timestamp *float64 `json:"timestamp" validate:"omitempty,gte=0"`
	Latitude  *float64 `json:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude" validate:"omitempty,gte=-180,lte=180"`
}

// HasLocation reports whether both coordinates are present.
func (p Payload) HasLocation() bool {
	return p.Latitude != nil && p.Longitude != nil
}

// Time returns the device timestamp, or fallback when the device sent none.
func (p Payload) Time(fallback time.Time) time.Time {
	if p.Timestamp == nil {
		return fallback
	}
	sec := int64(*p.Timestamp)
	nsec := int64((*p.Timestamp - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}

// lowerHex matches device identifiers: bare lowercase hex, no 0x prefix.
var lowerHex = regexp.MustCompile(`^[0-9a-f]+$`)

func newValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("lowerhex", func(fl validator.FieldLevel) bool {
		return lowerHex.MatchString(fl.Field().String())
	}); err != nil {
		panic(err)
	}
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		p := sl.Current().Interface().(Payload)
		if (p.Latitude == nil) != (p.Longitude == nil) {
			sl.ReportError(p.Latitude, "Latitude", "latitude", "both_or_none", "")
		}
	}, Payload{})
	return v
}

// FieldError names the first payload field that failed validation.
type FieldError struct {
	Field string
	Tag   string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("validation failed for field: %s (%s)", e.Field, e.Tag)
}

// Decoder parses and validates payloads. It is safe for concurrent use.
type Decoder struct {
	v *validator.Validate
}

func NewDecoder() *Decoder {
	return &Decoder{v: newValidator()}
}

func (d *Decoder) Decode(b []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(b, &p); err != nil {
		return Payload{}, fmt.Errorf("decode payload: %w", err)
	}
	if err := d.Validate(p); err != nil {
		return Payload{}, err
	}
	return p, nil
}

func (d *Decoder) Validate(p Payload) error {
	err := d.v.Struct(p)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return &FieldError{Field: jsonName(verrs[0].StructField()), Tag: verrs[0].Tag()}
	}
	return err
}

func jsonName(field string) string {
	switch field {
	case "DeviceID":
		return "device_id"
	default:
		return strings.ToLower(field)
	}
}
