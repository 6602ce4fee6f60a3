/*
Package errs provides custom error types and application-level error code constants.

This file defines the CustomError struct, which implements the standard Go error interface
and includes a business code, an error kind, a user-friendly message, optional field-level
details, and an HTTP status code for unified error reporting.
*/
package errs

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"cycleconnect/internal/pkg/logx"
)

// FieldError describes a single invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// CustomError is the custom error structure used throughout the application.
// It wraps the Go error interface, adding a business code, a kind and an HTTP status code.
type CustomError struct {
	// Code is the business error code (see constants definition).
	Code int

	// Kind is the error taxonomy name reported to clients (e.g. "ConflictError").
	Kind string

	// Message is the user-friendly error description.
	Message string

	// Status is the standard HTTP status code corresponding to this error.
	Status int

	// Fields carries field-level details for validation and conflict errors.
	Fields []FieldError
}

// Error implements the standard Go error interface. It returns a formatted
// error string containing the error code, HTTP status, and message.
func (e CustomError) Error() string {
	return fmt.Sprintf("Error Code %d (HTTP %d): %s", e.Code, e.Status, e.Message)
}

// WithField returns a copy of the error carrying one more field-level detail.
func (e *CustomError) WithField(field, message string) *CustomError {
	out := *e
	out.Fields = append(append([]FieldError(nil), e.Fields...), FieldError{Field: field, Message: message})
	return &out
}

// WithFields returns a copy of the error carrying the given field-level details.
func (e *CustomError) WithFields(fields []FieldError) *CustomError {
	out := *e
	out.Fields = append(append([]FieldError(nil), e.Fields...), fields...)
	return &out
}

// NewError constructs and returns a new *CustomError instance based on a predefined error code.
// The optional details parameter allows for formatting arguments (printf-style) to be supplied
// for the error message. If an unknown code is provided, it defaults to returning ErrUnknown.
func NewError(code int, details ...any) *CustomError {
	templateErr, ok := errorMap[code]

	if !ok {
		logx.Error(
			fmt.Errorf("attempted to create an error with an unknown code in errorMap"),
			"Unknown error code requested",
			"requested_code", code,
		)

		unknownErr := errorMap[ErrUnknown]
		return &CustomError{
			Code:    unknownErr.Code,
			Kind:    unknownErr.Kind,
			Message: unknownErr.Message,
			Status:  unknownErr.Status,
		}
	}

	customErr := templateErr

	if customErr.Status == 0 {
		customErr.Status = http.StatusBadRequest
	}

	if code == ErrUnknown && len(details) > 0 {
		if originalErr, ok := details[0].(error); ok {
			logx.Error(
				originalErr,
				"Handling ErrUnknown with underlying error",
			)
		}
	} else if len(details) > 0 {
		if strings.Contains(customErr.Message, "%") {
			customErr.Message = fmt.Sprintf(customErr.Message, details...)
		} else {
			logx.Warn(
				"Details provided for error, but message template has no formatting placeholders. Details ignored.",
				"code", code,
			)
		}
	}

	return &customErr
}

// Internal logs err and returns the generic ErrUnknown error, so that no
// detail of the underlying failure reaches the client.
func Internal(err error) *CustomError {
	return NewError(ErrUnknown, err)
}

// As extracts a *CustomError from err, falling back to ErrUnknown.
func As(err error) *CustomError {
	if err == nil {
		return nil
	}

	var customErr *CustomError
	if errors.As(err, &customErr) {
		return customErr
	}

	return Internal(err)
}
