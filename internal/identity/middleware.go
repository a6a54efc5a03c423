package identity

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const ctxProducerClaims = "ethosguard_producer_claims"

// RequireScope returns a Gin middleware that requires a valid Bearer
// producer token granting scope. A nil issuer disables the check.
func RequireScope(tokens *TokenIssuer, scope string) gin.HandlerFunc {
	if tokens == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Bearer token required",
			})
			return
		}

		claims, err := tokens.Verify(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid token: " + err.Error(),
			})
			return
		}
		if !claims.HasScope(scope) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "token lacks scope " + scope,
			})
			return
		}

		c.Set(ctxProducerClaims, claims)
		c.Next()
	}
}

// ProducerFromCtx returns the producer name injected by RequireScope, or ""
// when authentication is disabled.
func ProducerFromCtx(c *gin.Context) string {
	v, _ := c.Get(ctxProducerClaims)
	claims, _ := v.(*ProducerClaims)
	if claims == nil {
		return ""
	}
	return claims.Subject
}
