package middleware

import (
	"net/http"
	"strings"

	"github.com/ErlanBelekov/dist-job-scheduler/internal/identity"
	"github.com/gin-gonic/gin"
)

const errUnauthorized = "Unauthorized"

// Auth accepts either a JWT access token or an application token in the
// Bearer header. A JWT resolves to the acting user (userID/isAdmin set from
// the live row); an application token has no owning user, so it is treated
// as a non-interactive, admin-equivalent caller the same way the teacher's
// middleware treats any validated Bearer token as sufficient to proceed.
func Auth(identitySvc *identity.Service, appTokens *identity.AppTokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errUnauthorized})
			return
		}
		raw := strings.TrimPrefix(header, "Bearer ")

		if user, err := identitySvc.Verify(c.Request.Context(), raw); err == nil {
			c.Set("userID", user.ID)
			c.Set("isAdmin", user.IsAdmin)
			c.Set("authKind", "user")
			c.Next()
			return
		}

		if appTokens != nil {
			if tok, err := appTokens.Verify(c.Request.Context(), raw); err == nil {
				c.Set("appTokenID", tok.ID)
				c.Set("isAdmin", true)
				c.Set("authKind", "app_token")
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errUnauthorized})
	}
}

// OptionalAuth runs the same resolution as Auth but never aborts — routes
// whose auth_level is public still want the caller identity when present
// (spec §4.E step 2 authorizes AuthPublic functions for anyone, including
// anonymous callers).
func OptionalAuth(identitySvc *identity.Service, appTokens *identity.AppTokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			c.Next()
			return
		}
		if user, err := identitySvc.Verify(c.Request.Context(), raw); err == nil {
			c.Set("userID", user.ID)
			c.Set("isAdmin", user.IsAdmin)
			c.Set("authKind", "user")
		} else if appTokens != nil {
			if tok, err := appTokens.Verify(c.Request.Context(), raw); err == nil {
				c.Set("appTokenID", tok.ID)
				c.Set("isAdmin", true)
				c.Set("authKind", "app_token")
			}
		}
		c.Next()
	}
}

// RequireAdmin gates admin-only routes; it must run after Auth.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !c.GetBool("isAdmin") {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
			return
		}
		c.Next()
	}
}
