package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/tollgate/pkg/apierr"
)

// ParseJSON decodes JSON from the request body into dest.
// An empty body decodes to the zero value.
func ParseJSON(r *http.Request, dest interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil && !errors.Is(err, io.EOF) {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return apierr.Validation(fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit))
		}
		return apierr.Validation("Invalid JSON body").WithDetail("body", err.Error())
	}
	return nil
}

// ParseJSONOrError decodes JSON and writes an error envelope on failure
func ParseJSONOrError(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	if err := ParseJSON(r, dest); err != nil {
		WriteError(w, r, err)
		return false
	}
	return true
}

// ParsePathString extracts a non-empty path parameter
func ParsePathString(r *http.Request, key string) (string, error) {
	value := mux.Vars(r)[key]
	if value == "" {
		return "", apierr.Validation(fmt.Sprintf("missing path parameter: %s", key))
	}
	return value, nil
}

// ParsePathStringOrError extracts a path parameter and writes an error envelope on failure
func ParsePathStringOrError(w http.ResponseWriter, r *http.Request, key string) (string, bool) {
	value, err := ParsePathString(r, key)
	if err != nil {
		WriteError(w, r, err)
		return "", false
	}
	return value, true
}

// Validator returns false and a message when its value is invalid
type Validator func() (bool, string)

// ValidateAll runs validators and writes the first failure as VALIDATION_ERROR
func ValidateAll(w http.ResponseWriter, r *http.Request, validators ...Validator) bool {
	for _, validator := range validators {
		if valid, msg := validator(); !valid {
			WriteError(w, r, apierr.Validation(msg))
			return false
		}
	}
	return true
}

// Between validates that an integer lies within [min, max]
func Between(value, min, max int64, fieldName string) Validator {
	return func() (bool, string) {
		return value >= min && value <= max, fmt.Sprintf("%s must be between %d and %d", fieldName, min, max)
	}
}
