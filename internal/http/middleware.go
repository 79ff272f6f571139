package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/guildpay/guildpay/internal/config"
	"github.com/guildpay/guildpay/internal/models"
	"github.com/guildpay/guildpay/internal/security"
	"github.com/guildpay/guildpay/internal/store"
)

// bearerToken extracts the bearer token from the Authorization header.
func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
		return "", false
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == authHeader {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "empty token"})
		return "", false
	}
	return token, true
}

// ownerAuthMiddleware validates owner JWTs and loads the owner into context.
func ownerAuthMiddleware(st *store.Store, jwtCfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			return
		}
		claims, errJWT := security.ParseOwnerToken(jwtCfg.Secret, token)
		if errJWT != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		owner, errFind := st.OwnerByID(c.Request.Context(), claims.OwnerID)
		if errFind != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "owner not found"})
			return
		}
		c.Set("ownerID", owner.ID)
		c.Next()
	}
}

// operatorAuthMiddleware validates operator JWTs.
func operatorAuthMiddleware(st *store.Store, jwtCfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			return
		}
		claims, errJWT := security.ParseOperatorToken(jwtCfg.Secret, token)
		if errJWT != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		var operator models.Operator
		if errFind := st.DB().WithContext(c.Request.Context()).
			First(&operator, claims.OperatorID).Error; errFind != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "operator not found"})
			return
		}
		c.Set("operatorID", operator.ID)
		c.Next()
	}
}
