/*
Package req provides helper functions for HTTP request parsing and data binding.

It encapsulates JSON decoding with size limits, struct validation through
go-playground/validator, and typed query-string parsing, turning every failure
into a field-aware errs.CustomError.
*/
package req

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"cycleconnect/internal/pkg/errs"
)

// MaxJSONBodySize defines the maximum allowed size (10 MB) for a JSON request body.
const MaxJSONBodySize int64 = 10 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})

	return v
}

// BindJSON attempts to bind the JSON data from the HTTP request body to the destination struct dst
// and then validates it against its `validate` struct tags.
func BindJSON(w http.ResponseWriter, r *http.Request, dst any) *errs.CustomError {
	if customErr := DecodeJSON(w, r, dst); customErr != nil {
		return customErr
	}

	return Validate(dst)
}

// DecodeJSON decodes the request body into dst without running validation.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) *errs.CustomError {
	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "application/json") {
		return errs.NewError(errs.ErrUnsupportedMediaType)
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxJSONBodySize)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return errs.NewError(errs.ErrRequestEntityTooLarge)
		}

		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return errs.NewError(errs.ErrInvalidParams).
				WithField(typeErr.Field, fmt.Sprintf("must be of type %s", typeErr.Type))
		}

		if strings.HasPrefix(err.Error(), "json: unknown field ") {
			field := strings.Trim(strings.TrimPrefix(err.Error(), "json: unknown field "), `"`)
			return errs.NewError(errs.ErrInvalidParams).WithField(field, "is not allowed")
		}

		return errs.NewError(errs.ErrInvalidJSONFormat)
	}

	if decoder.More() {
		return errs.NewError(errs.ErrExtraContentInBody)
	}

	return nil
}

// Validate runs struct-tag validation on v and converts failures into a ValidationError
// whose Fields name the offending JSON paths (e.g. "profile.firstName").
func Validate(v any) *errs.CustomError {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return errs.NewError(errs.ErrInvalidParams)
	}

	fields := make([]errs.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, errs.FieldError{
			Field:   fieldPath(fe.Namespace()),
			Message: describe(fe),
		})
	}

	return errs.NewError(errs.ErrInvalidParams).WithFields(fields)
}

// fieldPath strips the root struct name from a validator namespace.
func fieldPath(namespace string) string {
	if i := strings.Index(namespace, "."); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at least %s characters", fe.Param())
		}
		if fe.Kind() == reflect.Slice || fe.Kind() == reflect.Array {
			return fmt.Sprintf("must contain at least %s items", fe.Param())
		}
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at most %s characters", fe.Param())
		}
		if fe.Kind() == reflect.Slice || fe.Kind() == reflect.Array {
			return fmt.Sprintf("must contain at most %s items", fe.Param())
		}
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "len":
		return fmt.Sprintf("must have exactly %s items", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "longitude":
		return "must be a valid longitude"
	case "latitude":
		return "must be a valid latitude"
	case "gtefield", "gtfield":
		return fmt.Sprintf("must not be before %s", fe.Param())
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}

// QueryInt reads an integer query parameter, returning def when absent.
func QueryInt(r *http.Request, name string, def int) (int, *errs.CustomError) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errs.NewError(errs.ErrInvalidParams).WithField(name, "must be an integer")
	}
	return v, nil
}

// QueryFloat reads a float query parameter. When required is true a missing value is an error.
func QueryFloat(r *http.Request, name string, def float64, required bool) (float64, *errs.CustomError) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		if required {
			return 0, errs.NewError(errs.ErrInvalidParams).WithField(name, "is required")
		}
		return def, nil
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, errs.NewError(errs.ErrInvalidParams).WithField(name, "must be a number")
	}
	return v, nil
}
