package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorType represents different types of errors returned by the imagery service
type ErrorType string

const (
	ErrorTypeNetwork        ErrorType = "network"
	ErrorTypeRateLimit      ErrorType = "rate_limit"
	ErrorTypeAuth           ErrorType = "auth"
	ErrorTypeParsing        ErrorType = "parsing"
	ErrorTypeInvalidRequest ErrorType = "invalid_request"
	ErrorTypeNotFound       ErrorType = "not_found"
	ErrorTypeServerError    ErrorType = "server_error"
	ErrorTypeCancelled      ErrorType = "cancelled"
	ErrorTypeStorage        ErrorType = "storage"
	ErrorTypeUnknown        ErrorType = "unknown"
)

// ErrNotFound is returned when the imagery service has no panorama near a location.
// It is an expected outcome, not a failure.
var ErrNotFound = stderrors.New("no panorama found")

// ErrCancelled marks work that was not attempted because the run was cancelled.
var ErrCancelled = stderrors.New("cancelled")

// Error represents an imagery service error with type information
type Error struct {
	Type    ErrorType
	Message string
	Code    int
	// Status is the service-level status string (e.g. OVER_QUERY_LIMIT), if any
	Status string
	// RetryAfter is the wait the service asked for on a throttled response
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("%s error (code %d, status %s): %s", e.Type, e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
}

// Is lets errors.Is(err, ErrNotFound) match typed not-found errors.
func (e *Error) Is(target error) bool {
	return target == ErrNotFound && e.Type == ErrorTypeNotFound
}

// IsTransient reports whether the error is a TransientServiceError,
// i.e. one the retry policy should try again.
func (e *Error) IsTransient() bool {
	return IsRetryable(e.Type)
}

// IsRetryable checks if an error type should be retried
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeRateLimit, ErrorTypeServerError:
		return true
	default:
		return false
	}
}

// TypeOf returns the ErrorType carried by err, classifying the sentinel
// errors of this package as well.
func TypeOf(err error) ErrorType {
	if err == nil {
		return ""
	}
	var apiErr *Error
	if stderrors.As(err, &apiErr) {
		return apiErr.Type
	}
	switch {
	case stderrors.Is(err, ErrNotFound):
		return ErrorTypeNotFound
	case stderrors.Is(err, ErrCancelled):
		return ErrorTypeCancelled
	}
	return ErrorTypeUnknown
}

// CrsMismatchError is returned before any spatial work when the area of
// interest and the road network are not in the same coordinate reference system.
type CrsMismatchError struct {
	NetworkCRS string
	AreaCRS    string
	Reason     string
}

func (e *CrsMismatchError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("coordinate reference system mismatch (network %s, area %s): %s", e.NetworkCRS, e.AreaCRS, e.Reason)
	}
	return fmt.Sprintf("coordinate reference system mismatch: network is %s, area is %s", e.NetworkCRS, e.AreaCRS)
}

// EmptyExtractError is returned when clipping leaves no road geometry.
type EmptyExtractError struct {
	// Ways is the number of ways in the network before clipping
	Ways int
	// Area describes the clip boundary, usually its bounding box
	Area string
}

func (e *EmptyExtractError) Error() string {
	return fmt.Sprintf("no road geometry of %d ways intersects area %s: area outside extract or misaligned coordinates", e.Ways, e.Area)
}
