package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	customerdomain "github.com/smallbiznis/kolekta/internal/customer/domain"
	invoicedomain "github.com/smallbiznis/kolekta/internal/invoice/domain"
	latefeedomain "github.com/smallbiznis/kolekta/internal/latefee/domain"
	ledgerdomain "github.com/smallbiznis/kolekta/internal/ledger/domain"
	plandomain "github.com/smallbiznis/kolekta/internal/plan/domain"
	"github.com/smallbiznis/kolekta/internal/providers/ocr"
	"github.com/smallbiznis/kolekta/internal/scheduler"
	subscriptiondomain "github.com/smallbiznis/kolekta/internal/subscription/domain"
	verificationdomain "github.com/smallbiznis/kolekta/internal/verification/domain"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

// ErrorHandlingMiddleware translates domain sentinels into the HTTP error
// contract. Handlers push errors with AbortWithError and never write error
// bodies themselves.
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
	var extractionErr *ocr.ExtractionError

	switch {
	case errors.Is(err, invoicedomain.ErrInvalidInvoice),
		errors.Is(err, invoicedomain.ErrInvalidAmount),
		errors.Is(err, subscriptiondomain.ErrInvalidSubscription),
		errors.Is(err, subscriptiondomain.ErrInvalidStatus),
		errors.Is(err, subscriptiondomain.ErrInvalidTargetStatus),
		errors.Is(err, customerdomain.ErrInvalidCustomer),
		errors.Is(err, verificationdomain.ErrInvalidSubmission):
		return http.StatusBadRequest, errorPayload{Type: "validation_error", Message: err.Error()}

	case errors.Is(err, invoicedomain.ErrInvoiceNotFound),
		errors.Is(err, subscriptiondomain.ErrSubscriptionNotFound),
		errors.Is(err, customerdomain.ErrCustomerNotFound),
		errors.Is(err, plandomain.ErrPlanNotFound),
		errors.Is(err, verificationdomain.ErrSubmissionNotFound):
		return http.StatusNotFound, errorPayload{Type: "not_found", Message: err.Error()}

	case errors.Is(err, invoicedomain.ErrDuplicateInvoice),
		errors.Is(err, invoicedomain.ErrInvoiceNotPayable),
		errors.Is(err, latefeedomain.ErrLateFeeAlreadyApplied),
		errors.Is(err, subscriptiondomain.ErrInvalidTransition),
		errors.Is(err, subscriptiondomain.ErrNotReactivatable),
		errors.Is(err, verificationdomain.ErrSubmissionResolved),
		errors.Is(err, verificationdomain.ErrSubmissionNotInReview),
		errors.Is(err, scheduler.ErrSweepAlreadyRunning):
		return http.StatusConflict, errorPayload{Type: "conflict", Message: err.Error()}

	case errors.As(err, &extractionErr):
		return http.StatusBadGateway, errorPayload{Type: "external_service_error", Message: "text extraction unavailable"}

	case errors.Is(err, ledgerdomain.ErrBalanceIntegrity),
		errors.Is(err, invoicedomain.ErrNegativeInvoiceAmount):
		return http.StatusInternalServerError, errorPayload{Type: "data_integrity_error", Message: "billing data integrity violation"}
	}

	return http.StatusInternalServerError, errorPayload{Type: "internal_error", Message: "internal server error"}
}
