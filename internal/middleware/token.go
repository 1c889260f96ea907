package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/NWB-044/movietime-gather/internal/identity"
	"github.com/NWB-044/movietime-gather/pkg/response"
)

const (
	// ContextParticipantID is the key for the participant ID in gin context.
	ContextParticipantID = "participant_id"
	// ContextSessionID is the key for the session ID in gin context.
	ContextSessionID = "session_id"
	// ContextRole is the key for the participant role in gin context.
	ContextRole = "role"
	// ContextDisplayName is the key for the display name in gin context.
	ContextDisplayName = "display_name"
)

// Token returns a middleware that validates the participant token and sets
// its claims in context.
func Token(tokens *identity.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Unauthorized(c, "invalid authorization header")
			c.Abort()
			return
		}
		claims, err := tokens.Validate(parts[1])
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		c.Set(ContextParticipantID, claims.ParticipantID)
		c.Set(ContextSessionID, claims.SessionID)
		c.Set(ContextRole, string(claims.Role))
		c.Set(ContextDisplayName, claims.DisplayName)
		c.Next()
	}
}

// RequireRole returns a middleware that allows only the given roles.
func RequireRole(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]struct{})
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		roleVal, ok := c.Get(ContextRole)
		if !ok {
			response.Unauthorized(c, "missing participant context")
			c.Abort()
			return
		}
		role, _ := roleVal.(string)
		if _, ok := allowed[role]; !ok {
			response.Forbidden(c, "insufficient permissions")
			c.Abort()
			return
		}
		c.Next()
	}
}
