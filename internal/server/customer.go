package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	customerdomain "github.com/smallbiznis/kolekta/internal/customer/domain"
)

func (s *Server) getCustomerBalance(c *gin.Context) {
	raw := strings.TrimSpace(c.Param("id"))
	customerID, err := snowflake.ParseString(raw)
	if err != nil {
		AbortWithError(c, customerdomain.ErrInvalidCustomer)
		return
	}

	balance, err := s.ledgerSvc.ComputeBalance(c.Request.Context(), s.db, customerID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": balance})
}
