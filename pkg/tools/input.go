package tools

import (
	"math"
	"strings"

	"github.com/platinummonkey/tollgate/pkg/apierr"
)

// Input is a decoded JSON request body
type Input map[string]interface{}

// Has reports whether field is present and not null or blank
func (in Input) Has(field string) bool {
	v, ok := in[field]
	if !ok || v == nil {
		return false
	}
	if s, isString := v.(string); isString {
		return strings.TrimSpace(s) != ""
	}
	return true
}

// String returns field as a string. A non-string value is a validation error.
func (in Input) String(field, def string) (string, *apierr.Error) {
	v, ok := in[field]
	if !ok || v == nil {
		return def, nil
	}
	s, isString := v.(string)
	if !isString {
		return "", invalidField(field, "must be a string")
	}
	return s, nil
}

// Int returns field as an integer within [lo, hi]
func (in Input) Int(field string, def, lo, hi int) (int, *apierr.Error) {
	v, ok := in[field]
	if !ok || v == nil {
		return def, nil
	}
	f, isNumber := v.(float64)
	if !isNumber || f != math.Trunc(f) {
		return 0, invalidField(field, "must be an integer")
	}
	if f < float64(lo) || f > float64(hi) {
		return 0, invalidField(field, "out of range")
	}
	return int(f), nil
}

// Bool returns field as a boolean
func (in Input) Bool(field string, def bool) (bool, *apierr.Error) {
	v, ok := in[field]
	if !ok || v == nil {
		return def, nil
	}
	b, isBool := v.(bool)
	if !isBool {
		return false, invalidField(field, "must be a boolean")
	}
	return b, nil
}

func invalidField(field, reason string) *apierr.Error {
	return apierr.Validation("Invalid value for " + field).WithDetail(field, reason)
}
