package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"trainhub/internal/training"
)

const identityKey = "identity"

// UserAuth enforces bearer JWT tokens signed with HS256 and resolves the
// acting identity (id + role) into the request context.
func UserAuth(signingKey, issuer string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		tokenStr := strings.TrimSpace(authz[len("bearer "):])
		claims, err := Parse(tokenStr, signingKey, issuer)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		role, err := training.ParseRole(claims.Role)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unknown role"})
			return
		}
		c.Set(identityKey, training.Identity{ID: claims.Subject, Role: role})
		c.Next()
	}
}

// RequireRole aborts with 403 unless the resolved identity holds one of the
// given roles.
func RequireRole(roles ...training.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := IdentityFrom(c)
		for _, r := range roles {
			if identity.Role == r {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient role"})
	}
}

// IdentityFrom returns the identity resolved by UserAuth, or the zero value
// when the middleware did not run.
func IdentityFrom(c *gin.Context) training.Identity {
	v, ok := c.Get(identityKey)
	if !ok {
		return training.Identity{}
	}
	identity, _ := v.(training.Identity)
	return identity
}
