package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	orderdomain "github.com/novabot503/novacat/internal/order/domain"
	uploaddomain "github.com/novabot503/novacat/internal/upload/domain"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
	ErrInternal       = errors.New("internal_error")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if code, ok := validationErrorCode(err); ok {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, orderdomain.ErrPaymentNotConfirmed):
		return http.StatusBadRequest, errorPayload{
			Type:    "payment_not_confirmed",
			Message: "payment has not been confirmed",
		}
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, orderdomain.ErrAlreadyProvisioned),
		errors.Is(err, orderdomain.ErrOrderExists):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "resource already provisioned for this order",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, uploaddomain.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge, errorPayload{
			Type:    "file_too_large",
			Message: "file too large",
		}
	case errors.Is(err, orderdomain.ErrProvisioningFailed):
		return http.StatusBadGateway, errorPayload{
			Type:    "provisioning_failed",
			Message: provisioningDetail(err),
		}
	case errors.Is(err, orderdomain.ErrPaymentInitiationFailed),
		errors.Is(err, orderdomain.ErrPaymentStatusFailed),
		errors.Is(err, uploaddomain.ErrStorageFailure):
		return http.StatusBadGateway, errorPayload{
			Type:    "upstream_error",
			Message: "upstream service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// provisioningDetail exposes only the reason reported by the panel itself.
// Transport and decode failures get a generic message.
func provisioningDetail(err error) string {
	var remote *orderdomain.RemoteError
	if errors.As(err, &remote) {
		if detail := strings.TrimSpace(remote.Detail); detail != "" {
			return detail
		}
	}
	return "panel provisioning failed"
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func validationErrorCode(err error) (string, bool) {
	for _, sentinel := range []error{
		ErrInvalidRequest,
		orderdomain.ErrInvalidTier,
		orderdomain.ErrInvalidContact,
		orderdomain.ErrInvalidOrderID,
		uploaddomain.ErrNoFiles,
		uploaddomain.ErrEmptyFile,
		uploaddomain.ErrInvalidPath,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error(), true
		}
	}
	return "", false
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, orderdomain.ErrOrderNotFound),
		errors.Is(err, uploaddomain.ErrFileNotFound):
		return true
	default:
		return false
	}
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request":
		return "request"
	case "invalid_tier":
		return "tier"
	case "invalid_contact":
		return "contact"
	case "invalid_order_id":
		return "order_id"
	case "no_files", "empty_file":
		return "file"
	case "invalid_path":
		return "path"
	}
	return strings.TrimPrefix(code, "invalid_")
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "invalid_tier":
		return "unknown panel tier"
	case "invalid_contact":
		return "a valid e-mail address is required"
	case "no_files":
		return "at least one file is required"
	case "empty_file":
		return "file is empty"
	default:
		return "invalid value"
	}
}

// classifyErrorForLog feeds the request logger's error_type and error_code fields.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	switch {
	case status >= http.StatusInternalServerError:
		return "server", payload.Type
	default:
		return "client", payload.Type
	}
}
