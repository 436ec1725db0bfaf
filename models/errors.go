package models

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode identifies a failure kind surfaced by the API.
type ErrorCode string

const (
	ErrInvalidAddress       ErrorCode = "INVALID_ADDRESS"
	ErrRPCUnavailable       ErrorCode = "RPC_UNAVAILABLE"
	ErrMalformedAccountData ErrorCode = "MALFORMED_ACCOUNT_DATA"
	ErrCredentialExpired    ErrorCode = "CREDENTIAL_EXPIRED"
	ErrCredentialInvalid    ErrorCode = "CREDENTIAL_INVALID"
	ErrRateLimitExceeded    ErrorCode = "RATE_LIMIT_EXCEEDED"
	ErrInsufficientAccess   ErrorCode = "INSUFFICIENT_ACCESS"
	ErrUnsupportedDataType  ErrorCode = "UNSUPPORTED_DATA_TYPE"
	ErrInvalidTimeframe     ErrorCode = "INVALID_TIMEFRAME"
	ErrUpstreamFetchFailed  ErrorCode = "UPSTREAM_FETCH_FAILED"

	ErrUnsupportedMetric ErrorCode = "UNSUPPORTED_METRIC"
	ErrUnsupportedEvent  ErrorCode = "UNSUPPORTED_EVENT"
	ErrBadRequest        ErrorCode = "BAD_REQUEST"
	ErrInternal          ErrorCode = "INTERNAL_ERROR"
)

// HTTPStatus maps an error code to the response status used by the API.
func (c ErrorCode) HTTPStatus() int {
	switch c {
	case ErrCredentialExpired, ErrCredentialInvalid:
		return http.StatusUnauthorized
	case ErrInsufficientAccess:
		return http.StatusForbidden
	case ErrRateLimitExceeded:
		return http.StatusTooManyRequests
	case ErrInvalidAddress, ErrUnsupportedDataType, ErrInvalidTimeframe,
		ErrUnsupportedMetric, ErrUnsupportedEvent, ErrBadRequest:
		return http.StatusBadRequest
	case ErrRPCUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// AppError is the error type shared by services and handlers.
// Message is safe to show to callers; Cause is only logged.
type AppError struct {
	Code    ErrorCode
	Message string
	Tier    Tier
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *AppError with the same code.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func NewAppError(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

func NewAppErrorWithCause(code ErrorCode, message string, cause error) *AppError {
	return &AppError{Code: code, Message: message, Cause: cause}
}

// InsufficientAccess builds the authorization error for a missing tier.
func InsufficientAccess(tier Tier) *AppError {
	msg := "insufficient token balance"
	if tier == TierRawData {
		msg = "insufficient stake"
	}
	return &AppError{Code: ErrInsufficientAccess, Message: msg, Tier: tier}
}

// CodeOf extracts the error code from err, or ErrInternal when err is not an AppError.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code ErrorCode) bool {
	return errors.Is(err, &AppError{Code: code})
}
