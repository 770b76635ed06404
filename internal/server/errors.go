package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tariron/saasodoo-sub008/internal/faults"
	tasksdomain "github.com/tariron/saasodoo-sub008/internal/tasks/domain"
	webhookdomain "github.com/tariron/saasodoo-sub008/internal/webhook/domain"
)

// APIError is the wire shape of every error response.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string { return e.Message }

func invalidRequestError() *APIError {
	return &APIError{Status: http.StatusBadRequest, Code: "invalid_request", Message: "request body could not be parsed"}
}

func newValidationError(code, message string) *APIError {
	return &APIError{Status: http.StatusBadRequest, Code: code, Message: message}
}

// AbortWithError maps domain errors onto HTTP responses. Fatal classes
// surface as 4xx synchronously; transient classes as 503 so callers
// back off.
func AbortWithError(c *gin.Context, err error) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		c.AbortWithStatusJSON(apiErr.Status, apiErr)
		return
	}

	switch {
	case errors.Is(err, faults.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, APIError{Code: "not_found", Message: "resource not found"})
	case errors.Is(err, faults.ErrInvalidState):
		c.AbortWithStatusJSON(http.StatusBadRequest, APIError{Code: "invalid_state", Message: err.Error()})
	case errors.Is(err, faults.ErrValidation):
		c.AbortWithStatusJSON(http.StatusBadRequest, APIError{Code: "validation_error", Message: err.Error()})
	case errors.Is(err, tasksdomain.ErrTaskConflict):
		c.AbortWithStatusJSON(http.StatusConflict, APIError{Code: "operation_in_flight", Message: "another operation is in flight for this instance"})
	case errors.Is(err, webhookdomain.ErrInvalidPayload), errors.Is(err, webhookdomain.ErrInvalidEvent):
		c.AbortWithStatusJSON(http.StatusBadRequest, APIError{Code: "invalid_event", Message: err.Error()})
	case errors.Is(err, faults.ErrBusy), errors.Is(err, faults.ErrResourceUnavailable):
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, APIError{Code: "resource_unavailable", Message: "temporarily at capacity, retry later"})
	case errors.Is(err, faults.ErrDownstreamTimeout):
		c.AbortWithStatusJSON(http.StatusGatewayTimeout, APIError{Code: "downstream_timeout", Message: "a dependency did not answer in time"})
	default:
		c.AbortWithStatusJSON(http.StatusInternalServerError, APIError{Code: "internal", Message: "internal error"})
	}
}
