package errx

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Error is a coded error carrying a category, an HTTP status and details.
type Error struct {
	// Code is the registry-qualified code, e.g. JOBX_JOB_NOT_FOUND
	Code string `json:"code"`

	// Message is the human-readable error message
	Message string `json:"message"`

	Type Type `json:"type"`

	// HTTPStatus is the suggested HTTP status code
	HTTPStatus int `json:"http_status"`

	// Details contains additional context about the error
	Details map[string]any `json:"details,omitempty"`

	// Err is the underlying cause (not exported in JSON)
	Err error `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithDetail adds a detail to the error and returns the error for chaining
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// MarshalJSON includes the formatted error string next to the fields.
func (e *Error) MarshalJSON() ([]byte, error) {
	type Alias Error
	return json.Marshal(&struct {
		*Alias
		Error string `json:"error,omitempty"`
	}{
		Alias: (*Alias)(e),
		Error: e.Error(),
	})
}

// IsType reports whether any *Error in err's chain has the given type.
func IsType(err error, errType Type) bool {
	return walk(err, func(e *Error) bool { return e.Type == errType })
}

// IsCode reports whether any *Error in err's chain carries the given code.
func IsCode(err error, code string) bool {
	return walk(err, func(e *Error) bool { return e.Code == code })
}

func walk(err error, match func(*Error) bool) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if match(e) {
			return true
		}
		err = e.Err
	}
	return false
}
