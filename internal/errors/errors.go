package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation     ErrorType = "validation"
	ErrorTypeAuthentication ErrorType = "authentication"
	ErrorTypeAuthorization  ErrorType = "authorization"
	ErrorTypeNotFound       ErrorType = "not_found"
	ErrorTypeConflict       ErrorType = "conflict"
	ErrorTypePhase          ErrorType = "phase"
	ErrorTypeInternal       ErrorType = "internal"
	ErrorTypeExternal       ErrorType = "external"
	ErrorTypeTimeout        ErrorType = "timeout"
	ErrorTypeDatabase       ErrorType = "database"
	ErrorTypeCache          ErrorType = "cache"
)

// Codes the web client branches on.
const (
	CodeValidation          = "VALIDATION_ERROR"
	CodeForbidden           = "AUTHZ_ERROR"
	CodeNotFound            = "NOT_FOUND"
	CodeAlreadySubmitted    = "ALREADY_SUBMITTED"
	CodeInvalidOrExpired    = "INVALID_OR_EXPIRED_LINK"
	CodeSubmissionsClosed   = "SUBMISSIONS_CLOSED"
	CodeResultsLocked       = "RESULTS_LOCKED"
	CodeMailDeliveryFailed  = "MAIL_DELIVERY_FAILED"
	CodeProfileDataInvalid  = "PROFILE_DATA_INVALID"
	CodeInternal            = "INTERNAL_ERROR"
	CodeDatabase            = "DATABASE_ERROR"
	CodeCache               = "CACHE_ERROR"
	CodeUnauthenticated     = "UNAUTHENTICATED"
	CodeNotMatched          = "NOT_MATCHED"
	CodeDomainNotAllowed    = "DOMAIN_NOT_ALLOWED"
	CodeInvalidCredentials  = "INVALID_CREDENTIALS"
	CodeEligibilityRequired = "ELIGIBILITY_REQUIRED"
)

// AppError represents a structured application error
type AppError struct {
	Type          ErrorType              `json:"type"`
	Code          string                 `json:"code"`
	Message       string                 `json:"message"`
	Details       string                 `json:"details,omitempty"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	Timestamp     time.Time              `json:"timestamp"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	Cause         error                  `json:"-"`
	HTTPStatus    int                    `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s - %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// ToJSON converts the error to JSON format
func (e *AppError) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// Retryable reports whether the client may repeat the request unchanged.
func (e *AppError) Retryable() bool {
	retry, _ := e.Metadata["retryable"].(bool)
	return retry
}

// NewAppError creates a new application error
func NewAppError(errorType ErrorType, code, message string) *AppError {
	return &AppError{
		Type:       errorType,
		Code:       code,
		Message:    message,
		Timestamp:  time.Now().UTC(),
		HTTPStatus: getDefaultHTTPStatus(errorType),
	}
}

// NewAppErrorWithCause creates a new application error with an underlying cause
func NewAppErrorWithCause(errorType ErrorType, code, message string, cause error) *AppError {
	err := NewAppError(errorType, code, message)
	err.Cause = cause
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// WithCorrelationID adds a correlation ID to the error
func (e *AppError) WithCorrelationID(correlationID string) *AppError {
	e.CorrelationID = correlationID
	return e
}

// WithDetails adds additional details to the error
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// WithMetadata adds metadata to the error
func (e *AppError) WithMetadata(key string, value interface{}) *AppError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// WithHTTPStatus sets a custom HTTP status code
func (e *AppError) WithHTTPStatus(status int) *AppError {
	e.HTTPStatus = status
	return e
}

func getDefaultHTTPStatus(errorType ErrorType) int {
	switch errorType {
	case ErrorTypeValidation:
		return http.StatusBadRequest
	case ErrorTypeAuthentication:
		return http.StatusUnauthorized
	case ErrorTypeAuthorization, ErrorTypePhase:
		return http.StatusForbidden
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeConflict:
		return http.StatusConflict
	case ErrorTypeTimeout:
		return http.StatusGatewayTimeout
	case ErrorTypeExternal:
		return http.StatusBadGateway
	case ErrorTypeDatabase, ErrorTypeCache:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// NewValidationError creates a validation error
func NewValidationError(field, message string) *AppError {
	return NewAppError(ErrorTypeValidation, CodeValidation, message).
		WithMetadata("field", field)
}

// NewAuthenticationError creates an authentication error
func NewAuthenticationError(code, message string) *AppError {
	return NewAppError(ErrorTypeAuthentication, code, message)
}

// NewAuthorizationError creates an authorization error
func NewAuthorizationError(message string) *AppError {
	return NewAppError(ErrorTypeAuthorization, CodeForbidden, message)
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string) *AppError {
	return NewAppError(ErrorTypeNotFound, CodeNotFound, fmt.Sprintf("%s not found", resource)).
		WithMetadata("resource", resource)
}

// NewConflictError creates a conflict error
func NewConflictError(code, message string) *AppError {
	return NewAppError(ErrorTypeConflict, code, message)
}

// NewAlreadySubmittedError is returned when a profile exists for the email.
func NewAlreadySubmittedError() *AppError {
	return NewConflictError(CodeAlreadySubmitted, "A profile has already been submitted for this email")
}

// NewInvalidLinkError reports a magic link that cannot be redeemed. reason is
// one of used, expired or not_found.
func NewInvalidLinkError(reason string) *AppError {
	return NewAppError(ErrorTypeAuthentication, CodeInvalidOrExpired, "This login link is invalid or has expired").
		WithMetadata("reason", reason)
}

// NewSubmissionsClosedError is returned for submissions at or after unlock.
func NewSubmissionsClosedError(unlock time.Time) *AppError {
	return NewAppError(ErrorTypePhase, CodeSubmissionsClosed, "Submissions are closed").
		WithMetadata("unlock_at", unlock.Format(time.RFC3339))
}

// NewResultsLockedError is returned for reveal-phase operations before unlock.
func NewResultsLockedError(unlock time.Time, remaining string) *AppError {
	return NewAppError(ErrorTypePhase, CodeResultsLocked, "Results are not available yet").
		WithMetadata("unlock_at", unlock.Format(time.RFC3339)).
		WithMetadata("time_remaining", remaining)
}

// NewMailDeliveryError reports a failed send. The link already issued stays
// valid, so the request can be retried.
func NewMailDeliveryError(cause error) *AppError {
	return NewAppErrorWithCause(ErrorTypeExternal, CodeMailDeliveryFailed,
		"We could not send the login email, please try again", cause).
		WithMetadata("service", "mail").
		WithMetadata("retryable", true)
}

// NewProfileDataInvalidError marks the viewer's own stored answers as
// unusable for matching.
func NewProfileDataInvalidError(cause error) *AppError {
	return NewAppErrorWithCause(ErrorTypeValidation, CodeProfileDataInvalid,
		"Your stored answers could not be read, so no matches can be shown", cause).
		WithHTTPStatus(http.StatusOK)
}

// NewInternalError creates an internal server error
func NewInternalError(message string, cause error) *AppError {
	return NewAppErrorWithCause(ErrorTypeInternal, CodeInternal, message, cause)
}

// NewDatabaseError creates a database error
func NewDatabaseError(operation string, cause error) *AppError {
	return NewAppErrorWithCause(ErrorTypeDatabase, CodeDatabase,
		fmt.Sprintf("Database operation failed: %s", operation), cause).
		WithMetadata("operation", operation).
		WithMetadata("retryable", true)
}

// NewCacheError creates a cache error
func NewCacheError(operation string, cause error) *AppError {
	return NewAppErrorWithCause(ErrorTypeCache, CodeCache,
		fmt.Sprintf("Cache operation failed: %s", operation), cause).
		WithMetadata("operation", operation).
		WithMetadata("retryable", true)
}

// AsAppError finds the first AppError in err's chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsErrorType checks if an error is of a specific type
func IsErrorType(err error, errorType ErrorType) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Type == errorType
}

// IsCode checks if err carries the given code
func IsCode(err error, code string) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}

// GetErrorType returns the error type if it's an AppError
func GetErrorType(err error) (ErrorType, bool) {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Type, true
	}
	return "", false
}

// GetCorrelationID extracts correlation ID from an error
func GetCorrelationID(err error) string {
	if appErr, ok := AsAppError(err); ok {
		return appErr.CorrelationID
	}
	return ""
}
