package oauth

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/scimtool/scimtool/internal/scim"
)

// AuthMiddleware validates bearer credentials for the SCIM and admin routes.
// It accepts JWTs issued by the token service and, when sharedSecret is
// non-empty, the legacy static bearer secret some IdP configurations still
// use. Rejections are SCIM error bodies per RFC 7644.
func AuthMiddleware(tokens *TokenService, sharedSecret string, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			unauthorized(c, "Missing Authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			unauthorized(c, "Invalid Authorization header format")
			return
		}
		token := parts[1]

		// Legacy static secret path
		if sharedSecret != "" &&
			subtle.ConstantTimeCompare([]byte(token), []byte(sharedSecret)) == 1 {
			c.Set("client_id", "shared-secret")
			c.Set("auth_method", "shared_secret")
			c.Next()
			return
		}

		if tokens == nil {
			unauthorized(c, "Invalid Bearer token")
			return
		}

		info, err := tokens.Validate(token)
		if err != nil {
			logger.Debug("Bearer token rejected", zap.Error(err))
			unauthorized(c, "Invalid Bearer token")
			return
		}

		c.Set("client_id", info.ClientID)
		c.Set("scope", info.Scope)
		c.Set("auth_method", "oauth_jwt")
		c.Next()
	}
}

func unauthorized(c *gin.Context, detail string) {
	c.Header("WWW-Authenticate", `Bearer realm="scim"`)
	scimErr := scim.ErrUnauthorized(detail)
	c.AbortWithStatusJSON(scimErr.StatusCode(), scimErr)
}
