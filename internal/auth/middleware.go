package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ContextKeyClaims is the gin context key holding the authenticated *Claims.
const ContextKeyClaims = "authClaims"

// Middleware extracts and validates the "Authorization: Bearer <token>"
// header. On success it stores the claims in the gin context; on failure
// it leaves the request unauthenticated and lets RequireAuth decide
// whether that matters for the route.
func Middleware(v *Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		const prefix = "Bearer "
		if strings.HasPrefix(header, prefix) {
			token := strings.TrimPrefix(header, prefix)
			if claims, err := v.Verify(token); err == nil {
				c.Set(ContextKeyClaims, claims)
			}
		}
		c.Next()
	}
}

// RequireAuth rejects requests that did not carry a valid bearer token.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, exists := c.Get(ContextKeyClaims); !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "a valid 'Authorization: Bearer <token>' header is required",
			})
			return
		}
		c.Next()
	}
}

// RequireRole rejects requests whose claims do not carry the given role.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, exists := c.Get(ContextKeyClaims)
		if !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "a valid 'Authorization: Bearer <token>' header is required",
			})
			return
		}
		cl, ok := claims.(*Claims)
		if !ok || cl.Role != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "insufficient role",
			})
			return
		}
		c.Next()
	}
}

// GetClaims returns the authenticated claims, if any.
func GetClaims(c *gin.Context) (*Claims, bool) {
	v, exists := c.Get(ContextKeyClaims)
	if !exists {
		return nil, false
	}
	cl, ok := v.(*Claims)
	return cl, ok
}

// GetSubject returns the authenticated subject (user/agent address), or
// "" if unauthenticated. Used as the rate limiter's principal key.
func GetSubject(c *gin.Context) string {
	cl, ok := GetClaims(c)
	if !ok {
		return ""
	}
	return cl.Subject
}

// IsAuthenticated reports whether the request carries valid claims.
func IsAuthenticated(c *gin.Context) bool {
	_, exists := c.Get(ContextKeyClaims)
	return exists
}
