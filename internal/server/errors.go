package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	channeldomain "github.com/smallbiznis/scambio/internal/channel/domain"
	"github.com/smallbiznis/scambio/internal/document"
	organizationdomain "github.com/smallbiznis/scambio/internal/organization/domain"
	transmissiondomain "github.com/smallbiznis/scambio/internal/transmission/domain"
	"gorm.io/gorm"
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
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
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

	// A failed document validation returns the full report so callers
	// can fix every finding in one round trip.
	if report := asDocumentReport(err); report != nil {
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "invoice_validation_failed",
			Message: "invoice failed local validation",
			Errors:  findingsToValidationErrors(report.Errors),
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
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
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: conflictMessage(err),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, transmissiondomain.ErrProgressivoUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	case errors.Is(err, transmissiondomain.ErrSigningFailed):
		return http.StatusInternalServerError, errorPayload{
			Type:    "signing_failed",
			Message: "invoice could not be signed",
		}
	case errors.Is(err, ErrInternal):
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func asDocumentReport(err error) *document.Report {
	var vErr *transmissiondomain.ValidationError
	if errors.As(err, &vErr) && vErr != nil {
		return &vErr.Report
	}
	return nil
}

func findingsToValidationErrors(findings []document.Finding) []ValidationError {
	out := make([]ValidationError, 0, len(findings))
	for _, f := range findings {
		out = append(out, ValidationError{
			Field:   f.Field,
			Code:    f.Code,
			Message: f.Message,
		})
	}
	return out
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return true
	case isOrganizationValidationError(err),
		isTransmissionValidationError(err):
		return true
	default:
		return false
	}
}

func isOrganizationValidationError(err error) bool {
	switch {
	case errors.Is(err, organizationdomain.ErrInvalidName),
		errors.Is(err, organizationdomain.ErrInvalidVATNumber),
		errors.Is(err, organizationdomain.ErrInvalidFiscalCode),
		errors.Is(err, organizationdomain.ErrInvalidTaxRegime),
		errors.Is(err, organizationdomain.ErrInvalidPECAddress),
		errors.Is(err, organizationdomain.ErrInvalidRoutingCode),
		errors.Is(err, organizationdomain.ErrInvalidCountry),
		errors.Is(err, organizationdomain.ErrInvalidOrganization):
		return true
	default:
		return false
	}
}

func isTransmissionValidationError(err error) bool {
	switch {
	case errors.Is(err, transmissiondomain.ErrInvalidOrganization),
		errors.Is(err, transmissiondomain.ErrInvalidTransmission),
		errors.Is(err, transmissiondomain.ErrInvalidStatusFilter),
		errors.Is(err, transmissiondomain.ErrInvalidPageToken),
		errors.Is(err, transmissiondomain.ErrMalformedNotification),
		errors.Is(err, channeldomain.ErrChannelNotFound),
		errors.Is(err, channeldomain.ErrInvalidChannelConfig):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, transmissiondomain.ErrTransmissionNotFound),
		errors.Is(err, transmissiondomain.ErrUnknownNotifiedFile),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, organizationdomain.ErrOrganizationExists),
		errors.Is(err, transmissiondomain.ErrNotRetryable):
		return true
	default:
		return false
	}
}

func conflictMessage(err error) string {
	switch {
	case errors.Is(err, transmissiondomain.ErrNotRetryable):
		return "transmission is not retryable in its current status"
	case errors.Is(err, organizationdomain.ErrOrganizationExists):
		return "organization already exists"
	default:
		return "conflict"
	}
}

func validationErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	default:
		return err.Error()
	}
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	if strings.HasPrefix(code, "malformed_") {
		return strings.TrimPrefix(code, "malformed_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	default:
		return "invalid value"
	}
}

// classifyErrorForLog feeds the request logger a stable type and code
// without rendering a response body.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	_, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}
