package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/draftledger/draftledger/backend/go-services/pkg/logger"
	"github.com/gin-gonic/gin"
)

// CallerKey is the gin context key holding the authenticated caller id.
const CallerKey = "callerID"

// Token is minimal interface for a verified token that can expose claims
type Token interface {
	Claims(v interface{}) error
}

// Verifier is the minimal interface the middleware depends on
type Verifier interface {
	Verify(ctx context.Context, raw string) (Token, error)
}

// RevocationChecker reports tokens that were revoked before expiry.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, token string) (bool, error)
}

// CallerID returns the id set by one of the identity middlewares, or "".
func CallerID(c *gin.Context) string {
	return c.GetString(CallerKey)
}

// AuthMiddleware returns a Gin middleware that verifies Bearer tokens using
// the provided verifier. The token's "sub" claim becomes the caller id.
// revoked may be nil.
func AuthMiddleware(ver Verifier, revoked RevocationChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing Authorization header"})
			return
		}
		// Expect 'Bearer <token>'
		var token string
		if n, _ := fmt.Sscanf(auth, "Bearer %s", &token); n != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid Authorization header"})
			return
		}

		if revoked != nil {
			bad, err := revoked.IsRevoked(c.Request.Context(), token)
			if err != nil {
				logger.Warnw("revocation check failed", "err", err)
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "token check unavailable"})
				return
			}
			if bad {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token revoked"})
				return
			}
		}

		idToken, err := ver.Verify(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token", "details": err.Error()})
			return
		}

		// Extract claims
		var claims map[string]interface{}
		if err := idToken.Claims(&claims); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "failed to parse claims"})
			return
		}
		sub, _ := claims["sub"].(string)
		if sub == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token has no subject"})
			return
		}

		c.Set("claims", claims)
		c.Set(CallerKey, sub)
		c.Next()
	}
}

// TrustedHeaderIdentity takes the caller id from a header set by an
// authenticating gateway. Only use it when the service is unreachable
// except through that gateway.
func TrustedHeaderIdentity(header string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(header))
		if id == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing " + header + " header"})
			return
		}
		c.Set(CallerKey, id)
		c.Next()
	}
}

// rateKey prefers the caller id and falls back to the client IP.
func rateKey(c *gin.Context) string {
	if id := CallerID(c); id != "" {
		return "sub:" + id
	}
	ip := c.ClientIP()
	if ip == "" {
		ip = "unknown"
	}
	return "ip:" + ip
}
