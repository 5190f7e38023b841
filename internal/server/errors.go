package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	catalogdomain "github.com/consultapj/consultapj/internal/catalog/domain"
	consultationdomain "github.com/consultapj/consultapj/internal/consultation/domain"
	creditdomain "github.com/consultapj/consultapj/internal/credit/domain"
	"gorm.io/gorm"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrInvalidRequest = errors.New("invalid_request")
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

func mapError(err error) (int, errorPayload) {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, consultationdomain.ErrNoTypesRequested),
		errors.Is(err, consultationdomain.ErrInvalidSubject),
		errors.Is(err, creditdomain.ErrInvalidAmount):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: errorMessage(err, "invalid request"),
		}
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, creditdomain.ErrRenewalFailed):
		// Distinct from plain insufficient funds so clients can prompt for a
		// payment-method update instead of a top-up.
		return http.StatusPaymentRequired, errorPayload{
			Type:    "renewal_failed",
			Message: "automatic renewal was declined",
		}
	case errors.Is(err, creditdomain.ErrInsufficientFunds):
		return http.StatusPaymentRequired, errorPayload{
			Type:    "insufficient_funds",
			Message: "insufficient credit balance",
		}
	case errors.Is(err, creditdomain.ErrUserNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, creditdomain.ErrLedgerCorrupted):
		return http.StatusInternalServerError, errorPayload{
			Type:    "ledger_corrupted",
			Message: "ledger verification failed",
		}
	case errors.Is(err, catalogdomain.ErrCatalogUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "consultation pricing is temporarily unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func errorMessage(err error, fallback string) string {
	if err == nil {
		return fallback
	}
	switch {
	case errors.Is(err, consultationdomain.ErrNoTypesRequested):
		return "at least one consultation type is required"
	case errors.Is(err, consultationdomain.ErrInvalidSubject):
		return "subject is not a valid CNPJ"
	case errors.Is(err, creditdomain.ErrInvalidAmount):
		return "amount must be positive"
	default:
		return fallback
	}
}

// classifyErrorForLog feeds the request logger's error_type/error_code fields.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	switch {
	case status >= http.StatusInternalServerError:
		return "internal", payload.Type
	case status >= http.StatusBadRequest:
		return "client", payload.Type
	default:
		return "", payload.Type
	}
}
