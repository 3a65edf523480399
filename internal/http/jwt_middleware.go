package http

import (
	"strings"

	"github.com/gin-gonic/gin"

	"rickshaw-auth/internal/apperr"
	"rickshaw-auth/internal/service"
)

const authClaimsKey = "auth_claims"

// JWTAuthMiddleware valida el bearer token y guarda los claims en el contexto.
func JWTAuthMiddleware(codec service.TokenCodec) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
			_ = c.Error(apperr.Unauthorized("Unauthorized"))
			c.Abort()
			return
		}

		token := strings.TrimSpace(header[len("Bearer "):])
		claims, err := codec.ParseAccess(token)
		if err != nil {
			_ = c.Error(apperr.Unauthorized("Unauthorized"))
			c.Abort()
			return
		}

		c.Set(authClaimsKey, claims)
		c.Next()
	}
}

// GetAuthClaims obtiene los claims del access token desde el contexto.
func GetAuthClaims(c *gin.Context) (service.AccessClaims, bool) {
	val, ok := c.Get(authClaimsKey)
	if !ok {
		return service.AccessClaims{}, false
	}
	claims, ok := val.(service.AccessClaims)
	return claims, ok
}
