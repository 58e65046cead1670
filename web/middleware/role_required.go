package middleware

import (
	"github.com/paralegal-agent/paralegal/web/service"
	"github.com/paralegal-agent/paralegal/web/session"

	"github.com/gin-gonic/gin"
)

// AdminRequired is SessionRequired plus an admin check. A logged-in non-admin
// gets 403 rather than a login redirect.
func AdminRequired(auth *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		username, err := auth.RequireAdmin(session.FromGin(c))
		if err != nil {
			abortWith(c, err)
			return
		}
		c.Set(UserKey, username)
		c.Next()
	}
}
