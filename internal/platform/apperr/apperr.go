// Package apperr defines the error taxonomy shared by the domain services and
// its mapping onto HTTP responses.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Error kinds. Match them with errors.Is.
var (
	ErrValidation   = errors.New("validation error")
	ErrConflict     = errors.New("conflict")
	ErrAvailability = errors.New("availability error")
	ErrPermission   = errors.New("permission denied")
	ErrNotFound     = errors.New("not found")
)

// Error is a classified failure with a human readable message. Code is a
// stable machine readable reason; Field names the offending input, if any.
type Error struct {
	Kind    error
	Code    string
	Field   string
	Message string
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Kind }

func newError(kind error, code, msg string, args ...interface{}) *Error {
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	return &Error{Kind: kind, Code: code, Message: msg}
}

// Validation reports malformed input.
func Validation(code, msg string, args ...interface{}) *Error {
	return newError(ErrValidation, code, msg, args...)
}

// FieldValidation reports malformed input attributable to one field.
func FieldValidation(field, msg string, args ...interface{}) *Error {
	e := newError(ErrValidation, "invalid_"+field, msg, args...)
	e.Field = field
	return e
}

// Conflict reports an overlap with an existing booking or time-off.
func Conflict(code, msg string, args ...interface{}) *Error {
	return newError(ErrConflict, code, msg, args...)
}

// Availability reports a candidate outside the doctor's working hours.
func Availability(code, msg string, args ...interface{}) *Error {
	return newError(ErrAvailability, code, msg, args...)
}

// Permission reports an actor that is not entitled to the operation.
func Permission(msg string, args ...interface{}) *Error {
	return newError(ErrPermission, "permission_denied", msg, args...)
}

// NotFound reports a missing entity.
func NotFound(entity string) *Error {
	return newError(ErrNotFound, "not_found", "%s not found", entity)
}

// CodeOf returns the reason code of err, or "" when err is not classified.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// StatusOf maps an error onto an HTTP status code.
func StatusOf(err error) int {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrAvailability):
		return http.StatusBadRequest
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrPermission):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Body is the JSON payload returned for classified errors.
type Body struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Field   string `json:"field,omitempty"`
}

// HTTP converts err into an echo.HTTPError. Unclassified errors become a
// generic 500 so driver messages never reach clients.
func HTTP(err error) *echo.HTTPError {
	status := StatusOf(err)
	if status == http.StatusInternalServerError {
		return echo.NewHTTPError(status, "internal server error").SetInternal(err)
	}
	body := Body{Message: err.Error()}
	var e *Error
	if errors.As(err, &e) {
		body.Code = e.Code
		body.Field = e.Field
	}
	return echo.NewHTTPError(status, body)
}
