package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	verificationdomain "github.com/smallbiznis/kolekta/internal/verification/domain"
)

// runSchedulerNow triggers a full lifecycle sweep immediately. Safe at any
// time: the sweep is the same idempotent operation the daily tick runs.
func (s *Server) runSchedulerNow(c *gin.Context) {
	if s.scheduler == nil {
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: errorPayload{
			Type:    "service_unavailable",
			Message: "scheduler is not running in this process",
		}})
		return
	}

	if err := s.scheduler.RunOnce(c.Request.Context()); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"status": "completed"}})
}

// Batch triggers report per-item failures inside the summary body; only a
// run that produced nothing at all surfaces as an HTTP error.
func (s *Server) runLateFeesNow(c *gin.Context) {
	result, err := s.lateFeeSvc.ProcessLateFees(c.Request.Context())
	if err != nil && len(result.Errors) == 0 {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) generateInvoicesNow(c *gin.Context) {
	result, err := s.invoiceSvc.GenerateMonthly(c.Request.Context())
	if err != nil && len(result.Errors) == 0 {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) verifyPaymentProofNow(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if _, err := snowflake.ParseString(id); err != nil {
		AbortWithError(c, verificationdomain.ErrInvalidSubmission)
		return
	}

	outcome, err := s.verificationSvc.VerifySubmission(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": outcome})
}

func (s *Server) reviewPaymentProof(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if _, err := snowflake.ParseString(id); err != nil {
		AbortWithError(c, verificationdomain.ErrInvalidSubmission)
		return
	}

	var req verificationdomain.ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, verificationdomain.ErrInvalidSubmission)
		return
	}

	submission, err := s.verificationSvc.Review(c.Request.Context(), id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": submission})
}
