package errors

import "net/http"

// Validation marks malformed input or an illegal state transition.
func Validation(message string) *Exception {
	return &Exception{
		Kind:       KindValidation,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

// Conflict marks contention over shared state: equipment already in use,
// overlapping bookings, stale waiting-queue windows.
func Conflict(message string) *Exception {
	return &Exception{
		Kind:       KindConflict,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

// Assignment marks a rotation queue that cannot satisfy the required headcount.
func Assignment(message string) *Exception {
	return &Exception{
		Kind:       KindAssignment,
		Message:    message,
		StatusCode: http.StatusUnprocessableEntity,
	}
}

func NotFound(message string) *Exception {
	return &Exception{
		Kind:       KindNotFound,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

// Expiry marks an operation against an already-expired queue entry or swap request.
func Expiry(message string) *Exception {
	return &Exception{
		Kind:       KindExpiry,
		Message:    message,
		StatusCode: http.StatusGone,
	}
}
