package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/colegio-smp/matricula-api/internal/middleware"
	"github.com/colegio-smp/matricula-api/internal/models"
)

func claimsFromContext(c *gin.Context) (*models.JWTClaims, bool) {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil, false
	}
	claims, ok := value.(*models.JWTClaims)
	return claims, ok
}
