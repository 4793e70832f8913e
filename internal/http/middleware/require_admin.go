package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"

	"pehlione.com/payrecon/internal/shared/apperr"
)

const (
	HeaderAdminToken = "X-Admin-Token"
	HeaderActor      = "X-Actor"
	CtxKeyActor      = "actor"
)

// RequireAdmin gates operator routes behind a shared API token. An empty token
// disables the routes entirely. The optional X-Actor header names the
// operator in the order history.
func RequireAdmin(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			Fail(c, apperr.ForbiddenErr("Admin API is disabled."))
			return
		}
		got := c.GetHeader(HeaderAdminToken)
		if got == "" {
			Fail(c, apperr.UnauthorizedErr("Admin token required."))
			return
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			Fail(c, apperr.ForbiddenErr("Invalid admin token."))
			return
		}

		actor := strings.TrimSpace(c.GetHeader(HeaderActor))
		if actor == "" {
			actor = "operator"
		}
		if len(actor) > 48 {
			actor = actor[:48]
		}
		c.Set(CtxKeyActor, "admin:"+actor)
		c.Next()
	}
}

// Actor returns the history actor set by RequireAdmin.
func Actor(c *gin.Context) string {
	if v := c.GetString(CtxKeyActor); v != "" {
		return v
	}
	return "admin:operator"
}
