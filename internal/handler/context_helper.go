package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/utsmok/ea-cli-django-sub002/internal/middleware"
	"github.com/utsmok/ea-cli-django-sub002/internal/models"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

func actorFromContext(c *gin.Context) string {
	claims := claimsFromContext(c)
	if claims == nil {
		return ""
	}
	if claims.Email != "" {
		return claims.Email
	}
	return claims.UserID
}
