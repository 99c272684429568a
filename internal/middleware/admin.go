package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/appsight/core/internal/pkg/response"
	"github.com/gin-gonic/gin"
)

const contextKeyAdmin = "is_admin"

// Admin returns a middleware that guards destructive endpoints with the
// static admin bearer token from configuration. An empty configured
// token disables the admin surface entirely.
func Admin(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			response.Unauthorized(c)
			return
		}
		presented := extractBearer(c)
		if presented == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			response.Unauthorized(c)
			return
		}
		c.Set(contextKeyAdmin, true)
		c.Next()
	}
}

// MarkAdmin flags the request as admin-authenticated when the token
// matches, without blocking. Used so the rate limiter can exempt
// operators on public routes.
func MarkAdmin(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token != "" {
			presented := extractBearer(c)
			if presented != "" && subtle.ConstantTimeCompare([]byte(presented), []byte(token)) == 1 {
				c.Set(contextKeyAdmin, true)
			}
		}
		c.Next()
	}
}

// IsAdmin reports whether the request carries a valid admin token.
func IsAdmin(c *gin.Context) bool {
	return c.GetBool(contextKeyAdmin)
}

func extractBearer(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}
