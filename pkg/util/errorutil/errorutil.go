package errorutil

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
)

// Error codes rendered to clients.
const (
	CodeAuthMissing        = "AUTH_MISSING"
	CodeAuthInvalid        = "AUTH_INVALID"
	CodeAuthExpired        = "AUTH_EXPIRED"
	CodeForbidden          = "FORBIDDEN"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeRateLimited        = "RATE_LIMITED"
	CodeAuditWriteFailed   = "AUDIT_WRITE_FAILED"
	CodeStoreUnavailable   = "STORE_UNAVAILABLE"
	CodeValidationFailed   = "VALIDATION_FAILED"
	CodeNotFound           = "NOT_FOUND"
	CodeInternal           = "INTERNAL_ERROR"
)

// authFailureMessage is shared by every credential related failure so callers
// cannot tell which check rejected them.
const authFailureMessage = "authentication required"

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches on error code so sentinel comparisons work across wrapped causes.
func (e *DomainError) Is(target error) bool {
	var other *DomainError
	if !errors.As(target, &other) {
		return false
	}
	return other.Code == e.Code
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidationFailed, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

// NewAuthMissing is returned when no credential accompanies a protected request.
func NewAuthMissing(cause error) error {
	return &DomainError{Code: CodeAuthMissing, Message: authFailureMessage, HTTPStatus: http.StatusUnauthorized, Err: cause}
}

// NewAuthInvalid is returned for malformed, forged or revoked tokens.
func NewAuthInvalid(cause error) error {
	return &DomainError{Code: CodeAuthInvalid, Message: authFailureMessage, HTTPStatus: http.StatusUnauthorized, Err: cause}
}

// NewAuthExpired is returned for well-formed tokens past their expiry.
func NewAuthExpired(cause error) error {
	return &DomainError{Code: CodeAuthExpired, Message: authFailureMessage, HTTPStatus: http.StatusUnauthorized, Err: cause}
}

// NewInvalidCredentials never says whether the username exists.
func NewInvalidCredentials(cause error) error {
	return &DomainError{
		Code:       CodeInvalidCredentials,
		Message:    "invalid username or password",
		HTTPStatus: http.StatusUnauthorized,
		Err:        cause,
	}
}

func NewForbidden(message string) error {
	return NewDomainError(CodeForbidden, message, http.StatusForbidden, nil)
}

// NewRateLimited carries the retry hint in whole seconds.
func NewRateLimited(retryAfter time.Duration) error {
	seconds := int64((retryAfter + time.Second - 1) / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	return NewDomainError(CodeRateLimited, "too many requests, please retry later", http.StatusTooManyRequests,
		map[string]any{"retry_after": seconds})
}

func NewStoreUnavailable(cause error) error {
	return &DomainError{
		Code:       CodeStoreUnavailable,
		Message:    "service temporarily unavailable",
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        cause,
	}
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows) {
		if de, ok := NewNotFound("resource", nil).(*DomainError); ok {
			return de
		}
	}
	if de, ok := NewInternalError(err).(*DomainError); ok {
		return de
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// HasCode reports whether err carries the given domain code.
func HasCode(err error, code string) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}
