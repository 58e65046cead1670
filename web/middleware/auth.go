package middleware

import (
	"errors"
	"net/http"

	"github.com/paralegal-agent/paralegal/logger"
	"github.com/paralegal-agent/paralegal/web/entity"
	"github.com/paralegal-agent/paralegal/web/service"
	"github.com/paralegal-agent/paralegal/web/session"

	"github.com/gin-gonic/gin"
)

// UserKey is the gin context key holding the username that passed a gate.
const UserKey = "username"

// SessionRequired lets the request through only with a logged-in session, or
// in open mode. Browsers are redirected to the base path, API clients get 401.
func SessionRequired(auth *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		username, err := auth.RequireSession(session.FromGin(c))
		if err != nil {
			abortWith(c, err)
			return
		}
		c.Set(UserKey, username)
		c.Next()
	}
}

func abortWith(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrUnauthenticated):
		if wantsJSON(c) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, entity.Msg{Msg: "Please log in"})
		} else {
			c.Redirect(http.StatusTemporaryRedirect, c.GetString("base_path"))
			c.Abort()
		}
	case errors.Is(err, service.ErrPrivilegeDenied):
		c.AbortWithStatusJSON(http.StatusForbidden, entity.Msg{Msg: "Admin privileges required"})
	default:
		logger.Error("access gate err:", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, entity.Msg{Msg: "Internal error"})
	}
}

func wantsJSON(c *gin.Context) bool {
	if c.GetHeader("X-Requested-With") == "XMLHttpRequest" {
		return true
	}
	return c.NegotiateFormat(gin.MIMEHTML, gin.MIMEJSON) == gin.MIMEJSON
}
