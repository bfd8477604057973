package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"arxiv-fulltext-service/internal/config"
	"arxiv-fulltext-service/utils"
)

// Authorizer decides whether the current requester may work with the
// resource identified by identifier, owned by owner (empty when unowned).
type Authorizer func(identifier, owner string) bool

type AuthMiddleware struct {
	config *config.Config
}

func NewAuthMiddleware(cfg *config.Config) *AuthMiddleware {
	return &AuthMiddleware{config: cfg}
}

// Enabled reports whether token verification is configured.
func (a *AuthMiddleware) Enabled() bool {
	return a.config.JWTSecret != ""
}

// Identify parses an optional bearer token and records the requester
// identity on the request context. Requests without a token proceed
// anonymously; a malformed token is rejected outright.
func (a *AuthMiddleware) Identify() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.Enabled() {
			c.Next()
			return
		}

		raw := extractToken(c.GetHeader("Authorization"))
		if raw == "" {
			c.Next()
			return
		}

		claims := jwt.MapClaims{}
		token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
			return []byte(a.config.JWTSecret), nil
		})
		if err != nil || !token.Valid {
			utils.RespondWithError(c, http.StatusUnauthorized, "unauthorized",
				"Invalid authentication token", nil)
			c.Abort()
			return
		}

		if sub, err := claims.GetSubject(); err == nil {
			c.Set("user_id", sub)
		}
		c.Set("token", raw)
		c.Next()
	}
}

// AuthorizerFor builds the per-request authorizer. Unowned resources are
// open; owned resources require the requester identity to match the owner.
// When token verification is not configured, everything is approved (the
// deployment is expected to sit behind a gateway in that case).
func (a *AuthMiddleware) AuthorizerFor(c *gin.Context) Authorizer {
	return func(identifier, owner string) bool {
		if !a.Enabled() || owner == "" {
			return true
		}
		return c.GetString("user_id") == owner
	}
}

// Token returns the raw bearer token carried on the request, if any.
func Token(c *gin.Context) string {
	if raw := c.GetString("token"); raw != "" {
		return raw
	}
	return extractToken(c.GetHeader("Authorization"))
}

func extractToken(header string) string {
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return header
}
