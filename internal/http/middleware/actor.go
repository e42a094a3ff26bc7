// README: Actor middleware; the gateway authenticates and forwards the caller id.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	ActorHeader = "X-Actor-ID"
	actorKey    = "actor_id"
)

// Actor rejects requests without a caller id.
func Actor() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(ActorHeader))
		if id == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing " + ActorHeader})
			return
		}
		c.Set(actorKey, id)
		c.Next()
	}
}

func ActorID(c *gin.Context) string {
	return c.GetString(actorKey)
}
