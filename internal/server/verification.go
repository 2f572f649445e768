package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	verificationdomain "github.com/smallbiznis/kolekta/internal/verification/domain"
)

func (s *Server) submitPaymentProof(c *gin.Context) {
	var req verificationdomain.SubmitProofRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, verificationdomain.ErrInvalidSubmission)
		return
	}

	submission, err := s.verificationSvc.Submit(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": submission})
}

func (s *Server) getPaymentProof(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if _, err := snowflake.ParseString(id); err != nil {
		AbortWithError(c, verificationdomain.ErrInvalidSubmission)
		return
	}

	submission, err := s.verificationSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": submission})
}
