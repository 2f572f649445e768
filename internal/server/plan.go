package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	plandomain "github.com/smallbiznis/kolekta/internal/plan/domain"
)

func (s *Server) getPlan(c *gin.Context) {
	raw := strings.TrimSpace(c.Param("id"))
	planID, err := snowflake.ParseString(raw)
	if err != nil {
		AbortWithError(c, plandomain.ErrPlanNotFound)
		return
	}

	plan, err := s.planRepo.FindByID(c.Request.Context(), s.db, planID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if plan == nil {
		AbortWithError(c, plandomain.ErrPlanNotFound)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": plan})
}
