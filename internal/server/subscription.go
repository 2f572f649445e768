package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	subscriptiondomain "github.com/smallbiznis/kolekta/internal/subscription/domain"
)

func (s *Server) getSubscription(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if _, err := snowflake.ParseString(id); err != nil {
		AbortWithError(c, subscriptiondomain.ErrInvalidSubscription)
		return
	}

	item, err := s.subscriptionSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

// confirmSubscriptionPayment is the payment-confirmation webhook target:
// PENDING_PAYMENT moves to ACTIVE and the cycle's payment state flips to PAID.
func (s *Server) confirmSubscriptionPayment(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if _, err := snowflake.ParseString(id); err != nil {
		AbortWithError(c, subscriptiondomain.ErrInvalidSubscription)
		return
	}

	if err := s.subscriptionSvc.ConfirmPayment(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"subscription_id": id, "status": subscriptiondomain.SubscriptionStatusActive}})
}

func (s *Server) reactivateSubscription(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if _, err := snowflake.ParseString(id); err != nil {
		AbortWithError(c, subscriptiondomain.ErrInvalidSubscription)
		return
	}

	result, err := s.subscriptionSvc.Reactivate(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}
