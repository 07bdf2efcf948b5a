package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAppErrorWithCause(t *testing.T) {
	cause := stderrors.New("connection reset")
	err := NewAppErrorWithCause(ErrorTypeDatabase, CodeDatabase, "Database operation failed", cause)

	assert.Equal(t, ErrorTypeDatabase, err.Type)
	assert.Equal(t, "connection reset", err.Details)
	assert.Equal(t, "DATABASE_ERROR: Database operation failed - connection reset", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.False(t, err.Timestamp.IsZero())
}

func TestDefaultHTTPStatus(t *testing.T) {
	tests := []struct {
		errorType ErrorType
		expected  int
	}{
		{ErrorTypeValidation, http.StatusBadRequest},
		{ErrorTypeAuthentication, http.StatusUnauthorized},
		{ErrorTypeAuthorization, http.StatusForbidden},
		{ErrorTypePhase, http.StatusForbidden},
		{ErrorTypeNotFound, http.StatusNotFound},
		{ErrorTypeConflict, http.StatusConflict},
		{ErrorTypeTimeout, http.StatusGatewayTimeout},
		{ErrorTypeExternal, http.StatusBadGateway},
		{ErrorTypeDatabase, http.StatusServiceUnavailable},
		{ErrorTypeCache, http.StatusServiceUnavailable},
		{ErrorTypeInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.errorType), func(t *testing.T) {
			assert.Equal(t, tt.expected, getDefaultHTTPStatus(tt.errorType))
		})
	}
}

func TestDomainErrors(t *testing.T) {
	unlock := time.Date(2026, 2, 6, 20, 0, 0, 0, time.FixedZone("IST", 19800))

	tests := []struct {
		name      string
		err       *AppError
		code      string
		status    int
		retryable bool
	}{
		{"already submitted", NewAlreadySubmittedError(), CodeAlreadySubmitted, http.StatusConflict, false},
		{"invalid link", NewInvalidLinkError("used"), CodeInvalidOrExpired, http.StatusUnauthorized, false},
		{"submissions closed", NewSubmissionsClosedError(unlock), CodeSubmissionsClosed, http.StatusForbidden, false},
		{"results locked", NewResultsLockedError(unlock, "01d 00h 00m 00s"), CodeResultsLocked, http.StatusForbidden, false},
		{"mail failed", NewMailDeliveryError(stderrors.New("smtp 421")), CodeMailDeliveryFailed, http.StatusBadGateway, true},
		{"profile data invalid", NewProfileDataInvalidError(stderrors.New("bad length")), CodeProfileDataInvalid, http.StatusOK, false},
		{"database", NewDatabaseError("list_profiles", stderrors.New("down")), CodeDatabase, http.StatusServiceUnavailable, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.status, tt.err.HTTPStatus)
			assert.Equal(t, tt.retryable, tt.err.Retryable())
		})
	}

	assert.Equal(t, "used", NewInvalidLinkError("used").Metadata["reason"])
	assert.Equal(t, "2026-02-06T20:00:00+05:30", NewSubmissionsClosedError(unlock).Metadata["unlock_at"])
}

func TestHelpers_FollowWrapping(t *testing.T) {
	appErr := NewAlreadySubmittedError().WithCorrelationID("req-9")
	wrapped := fmt.Errorf("submit: %w", appErr)

	got, ok := AsAppError(wrapped)
	require.True(t, ok)
	assert.Same(t, appErr, got)
	assert.True(t, IsErrorType(wrapped, ErrorTypeConflict))
	assert.True(t, IsCode(wrapped, CodeAlreadySubmitted))
	assert.Equal(t, "req-9", GetCorrelationID(wrapped))

	errType, ok := GetErrorType(wrapped)
	assert.True(t, ok)
	assert.Equal(t, ErrorTypeConflict, errType)

	_, ok = GetErrorType(stderrors.New("plain"))
	assert.False(t, ok)
	assert.Empty(t, GetCorrelationID(stderrors.New("plain")))
}

func TestAppError_JSON(t *testing.T) {
	err := NewValidationError("email", "Email must end with @inst.edu").WithCorrelationID("c1")
	data, jsonErr := err.ToJSON()
	require.NoError(t, jsonErr)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "validation", decoded["type"])
	assert.Equal(t, "VALIDATION_ERROR", decoded["code"])
	assert.Equal(t, "c1", decoded["correlation_id"])
	assert.Equal(t, "email", decoded["metadata"].(map[string]interface{})["field"])
	assert.NotContains(t, decoded, "Cause")
}
