package middleware

import (
	"net/http"
	"strings"

	"github.com/ASHISH26940/storyspark-api/pkg/services"
	"github.com/ASHISH26940/storyspark-api/pkg/utils"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Gin context key for storing parent claims.
const ParentClaimsContextKey = "parentClaims"

// AuthMiddleware is a Gin middleware to authenticate requests using JWT.
func AuthMiddleware(tokens *services.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			log.Debug("AuthMiddleware: Missing Authorization header.")
			utils.AbortWithError(c, http.StatusUnauthorized, "Authorization header required", nil)
			return
		}

		// Expected format: "Bearer <token>"
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			log.Debug("AuthMiddleware: Invalid Authorization header format.")
			utils.AbortWithError(c, http.StatusUnauthorized, "Invalid Authorization header format", nil)
			return
		}

		claims, err := tokens.ValidateToken(parts[1])
		if err != nil {
			log.Debugf("AuthMiddleware: Invalid or expired JWT token: %v", err)
			utils.AbortWithError(c, http.StatusUnauthorized, "Invalid or expired token", err.Error())
			return
		}

		c.Set(ParentClaimsContextKey, claims)
		log.Debugf("AuthMiddleware: Parent %s (ID: %s) authenticated successfully.", claims.Email, claims.ParentID.String())

		c.Next()
	}
}

// GetParentClaimsFromContext extracts parent claims from Gin context.
func GetParentClaimsFromContext(c *gin.Context) (*services.Claims, bool) {
	claims, exists := c.Get(ParentClaimsContextKey)
	if !exists {
		return nil, false
	}
	parentClaims, ok := claims.(*services.Claims)
	if !ok {
		return nil, false
	}
	return parentClaims, true
}
