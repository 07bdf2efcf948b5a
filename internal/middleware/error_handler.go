package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/nitematch/nitematch/internal/errors"
	"github.com/nitematch/nitematch/internal/telemetry"
)

// ErrorResponse is the JSON body of every failed request
type ErrorResponse struct {
	Type          errors.ErrorType       `json:"type"`
	Code          string                 `json:"code"`
	Message       string                 `json:"message"`
	Details       string                 `json:"details,omitempty"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	Retryable     bool                   `json:"retryable,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// ErrorHandlerConfig controls how much of an error reaches the client
type ErrorHandlerConfig struct {
	// ExposeDetails includes the wrapped cause text for server-side errors
	ExposeDetails bool
}

// ErrorHandler renders the last error a handler attached with c.Error as an
// AppError response, unless the handler already wrote a body
func ErrorHandler(config ErrorHandlerConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		appErr := toAppError(c.Errors.Last().Err)
		if appErr.CorrelationID == "" {
			appErr = appErr.WithCorrelationID(GetCorrelationID(c.Request.Context()))
		}
		logError(c, appErr)

		if c.Writer.Written() {
			return
		}
		c.JSON(appErr.HTTPStatus, renderError(appErr, config))
	}
}

// Abort records err for ErrorHandler and stops the handler chain
func Abort(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// Recovery converts panics into INTERNAL_ERROR responses
func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		telemetry.GetContextualLogger(c.Request.Context()).WithFields(map[string]interface{}{
			"operation":   "panic_recovery",
			"panic_value": fmt.Sprintf("%v", recovered),
			"stack_trace": string(debug.Stack()),
			"path":        c.Request.URL.Path,
		}).Error("Panic recovered in HTTP handler")

		appErr := errors.NewInternalError("An unexpected error occurred", nil).
			WithCorrelationID(GetCorrelationID(c.Request.Context()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, renderError(appErr, ErrorHandlerConfig{}))
	})
}

func toAppError(err error) *errors.AppError {
	if appErr, ok := errors.AsAppError(err); ok {
		return appErr
	}
	return errors.NewInternalError("An unexpected error occurred", err)
}

func renderError(appErr *errors.AppError, config ErrorHandlerConfig) ErrorResponse {
	resp := ErrorResponse{
		Type:          appErr.Type,
		Code:          appErr.Code,
		Message:       appErr.Message,
		CorrelationID: appErr.CorrelationID,
		Retryable:     appErr.Retryable(),
		Metadata:      appErr.Metadata,
	}
	if appErr.HTTPStatus < http.StatusInternalServerError || config.ExposeDetails {
		resp.Details = appErr.Details
	}
	return resp
}

// logError logs at a level chosen by error type
func logError(c *gin.Context, appErr *errors.AppError) {
	logger := telemetry.GetContextualLogger(c.Request.Context()).WithFields(map[string]interface{}{
		"operation":  "error_handler",
		"error_type": string(appErr.Type),
		"error_code": appErr.Code,
		"route":      c.FullPath(),
	})
	for k, v := range appErr.Metadata {
		logger = logger.WithField(k, v)
	}
	if appErr.Cause != nil {
		logger = logger.WithField("cause", appErr.Cause.Error())
	}

	switch appErr.Type {
	case errors.ErrorTypeValidation, errors.ErrorTypeAuthentication, errors.ErrorTypeAuthorization, errors.ErrorTypePhase:
		logger.Warn(appErr.Message)
	case errors.ErrorTypeNotFound, errors.ErrorTypeConflict:
		logger.Info(appErr.Message)
	default:
		logger.Error(appErr.Message)
	}
}
