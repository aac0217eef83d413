package errors

import (
	"errors"
	"net/http"
)

// Kind classifies an Exception into the subsystem error taxonomy.
type Kind string

const (
	KindValidation Kind = "validation"
	KindConflict   Kind = "conflict"
	KindAssignment Kind = "assignment"
	KindNotFound   Kind = "not_found"
	KindExpiry     Kind = "expiry"
)

type Exception struct {
	Kind       Kind
	Message    string
	StatusCode int
}

func (e *Exception) Error() string {
	return e.Message
}

func StatusCode(err error) int {
	var appErr *Exception
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}

func KindOf(err error) Kind {
	var appErr *Exception
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ""
}

func IsValidation(err error) bool { return KindOf(err) == KindValidation }
func IsConflict(err error) bool   { return KindOf(err) == KindConflict }
func IsAssignment(err error) bool { return KindOf(err) == KindAssignment }
func IsNotFound(err error) bool   { return KindOf(err) == KindNotFound }
func IsExpiry(err error) bool     { return KindOf(err) == KindExpiry }
