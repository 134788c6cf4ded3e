package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/regdesk/backend/internal/models"
	"github.com/regdesk/backend/internal/utils"
)

const actorKey = "actor"

// AuthMiddleware verifies the bearer token and stores the caller as a models.Actor
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractToken(c)
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization token required", "code": "unauthorized"})
			return
		}

		claims, err := utils.ValidateToken(secret, tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token", "code": "unauthorized"})
			return
		}

		actor := claims.Actor()
		c.Set(actorKey, actor)
		c.Set("user_id", actor.UserID)
		c.Next()
	}
}

// ActorFromContext returns the authenticated caller
func ActorFromContext(c *gin.Context) (models.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return models.Actor{}, false
	}
	actor, ok := v.(models.Actor)
	return actor, ok
}

// SetActor stores actor on the context. Used by tests and internal callers.
func SetActor(c *gin.Context, actor models.Actor) {
	c.Set(actorKey, actor)
}

// extractToken gets the token from the Authorization header
func extractToken(c *gin.Context) string {
	parts := strings.Fields(c.GetHeader("Authorization"))
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return parts[1]
	}
	return ""
}
