// Package errors defines the structured error taxonomy shared by the solver,
// the host ledger and the HTTP surface.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode identifies the kind of a ServiceError.
type ErrorCode string

const (
	ErrCodeUnauthorized      ErrorCode = "UNAUTHORIZED"
	ErrCodeReentrantCall     ErrorCode = "REENTRANT_CALL"
	ErrCodeDelegationFailed  ErrorCode = "DELEGATION_FAILED"
	ErrCodeTransferFailed    ErrorCode = "TRANSFER_FAILED"
	ErrCodeInsufficientFunds ErrorCode = "INSUFFICIENT_FUNDS"
	ErrCodeInvalidArgument   ErrorCode = "INVALID_ARGUMENT"
	ErrCodeNotFound          ErrorCode = "NOT_FOUND"
	ErrCodeInvalidToken      ErrorCode = "INVALID_TOKEN"
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal          ErrorCode = "INTERNAL_ERROR"
)

// ServiceError is a classified failure. Every failing solver call surfaces
// as one of these; Err carries the nested cause, if any.
type ServiceError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	HTTPStatus int                    `json:"-"`
	Err        error                  `json:"-"`
}

// Error implements error.
func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped cause.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a ServiceError of the same code. This lets
// callers match against the sentinel values below with errors.Is.
func (e *ServiceError) Is(target error) bool {
	t, ok := target.(*ServiceError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithDetails returns a copy of the error with an extra detail attached.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	out := *e
	out.Details = make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		out.Details[k] = v
	}
	out.Details[key] = value
	return &out
}

// Sentinels for errors.Is matching.
var (
	ErrUnauthorized      = &ServiceError{Code: ErrCodeUnauthorized}
	ErrReentrantCall     = &ServiceError{Code: ErrCodeReentrantCall}
	ErrDelegationFailed  = &ServiceError{Code: ErrCodeDelegationFailed}
	ErrTransferFailed    = &ServiceError{Code: ErrCodeTransferFailed}
	ErrInsufficientFunds = &ServiceError{Code: ErrCodeInsufficientFunds}
	ErrInvalidArgument   = &ServiceError{Code: ErrCodeInvalidArgument}
	ErrNotFound          = &ServiceError{Code: ErrCodeNotFound}
	ErrInvalidToken      = &ServiceError{Code: ErrCodeInvalidToken}
	ErrRateLimitExceeded = &ServiceError{Code: ErrCodeRateLimitExceeded}
	ErrInternal          = &ServiceError{Code: ErrCodeInternal}
)

// Unauthorized reports a caller that is not allowed to perform the call.
func Unauthorized(reason string) *ServiceError {
	return &ServiceError{
		Code:       ErrCodeUnauthorized,
		Message:    "unauthorized: " + reason,
		HTTPStatus: http.StatusForbidden,
	}
}

// ReentrantCall reports a nested invocation of a guarded entry point.
func ReentrantCall() *ServiceError {
	return &ServiceError{
		Code:       ErrCodeReentrantCall,
		Message:    "unauthorized: reentrant call",
		HTTPStatus: http.StatusConflict,
	}
}

// DelegationFailed wraps the failure of a forwarded call. The target's
// original message is kept verbatim in Details["reason"] and as the cause.
func DelegationFailed(cause error) *ServiceError {
	e := &ServiceError{
		Code:       ErrCodeDelegationFailed,
		Message:    "delegation failed",
		HTTPStatus: http.StatusBadGateway,
		Err:        cause,
	}
	if cause != nil {
		e.Details = map[string]interface{}{"reason": cause.Error()}
	}
	return e
}

// TransferFailed wraps a rejected outbound native or token transfer.
func TransferFailed(asset string, cause error) *ServiceError {
	return &ServiceError{
		Code:       ErrCodeTransferFailed,
		Message:    "transfer failed",
		Details:    map[string]interface{}{"asset": asset},
		HTTPStatus: http.StatusUnprocessableEntity,
		Err:        cause,
	}
}

// InsufficientFunds reports a debit exceeding the available balance.
func InsufficientFunds(available, requested string) *ServiceError {
	return &ServiceError{
		Code:       ErrCodeInsufficientFunds,
		Message:    fmt.Sprintf("insufficient balance: available %s, requested %s", available, requested),
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

// InvalidArgument reports malformed input.
func InvalidArgument(field, reason string) *ServiceError {
	return &ServiceError{
		Code:       ErrCodeInvalidArgument,
		Message:    fmt.Sprintf("%s: %s", field, reason),
		Details:    map[string]interface{}{"field": field},
		HTTPStatus: http.StatusBadRequest,
	}
}

// NotFound reports a missing resource.
func NotFound(resource, id string) *ServiceError {
	msg := resource + " not found"
	if id != "" {
		msg = fmt.Sprintf("%s %q not found", resource, id)
	}
	return &ServiceError{
		Code:       ErrCodeNotFound,
		Message:    msg,
		HTTPStatus: http.StatusNotFound,
	}
}

// InvalidToken reports a bad or expired bearer token.
func InvalidToken(cause error) *ServiceError {
	return &ServiceError{
		Code:       ErrCodeInvalidToken,
		Message:    "invalid or expired token",
		HTTPStatus: http.StatusUnauthorized,
		Err:        cause,
	}
}

// RateLimitExceeded reports a throttled caller.
func RateLimitExceeded(limit int, window string) *ServiceError {
	return &ServiceError{
		Code:       ErrCodeRateLimitExceeded,
		Message:    fmt.Sprintf("rate limit exceeded: %d requests per %s", limit, window),
		HTTPStatus: http.StatusTooManyRequests,
	}
}

// Internal wraps an unexpected failure.
func Internal(message string, cause error) *ServiceError {
	return &ServiceError{
		Code:       ErrCodeInternal,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		Err:        cause,
	}
}

// GetServiceError returns the outermost ServiceError in err's chain, or nil.
func GetServiceError(err error) *ServiceError {
	var se *ServiceError
	if stderrors.As(err, &se) {
		return se
	}
	return nil
}

// CodeOf returns the code of err, or ErrCodeInternal for unclassified errors.
func CodeOf(err error) ErrorCode {
	if se := GetServiceError(err); se != nil {
		return se.Code
	}
	return ErrCodeInternal
}
