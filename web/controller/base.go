// Package controller provides the HTTP handlers of the paralegal web panel:
// login, account self-service (join, password reset) and user administration.
package controller

import (
	"errors"
	"net/http"

	"github.com/paralegal-agent/paralegal/logger"
	"github.com/paralegal-agent/paralegal/web/middleware"
	"github.com/paralegal-agent/paralegal/web/service"

	"github.com/gin-gonic/gin"
)

// BaseController provides the access gates shared by all controllers.
type BaseController struct {
	auth *service.AuthService
	// throttle guards endpoints that take credentials or tokens. May be nil.
	throttle gin.HandlerFunc
}

func (a *BaseController) checkLogin() gin.HandlerFunc {
	return middleware.SessionRequired(a.auth)
}

func (a *BaseController) checkAdmin() gin.HandlerFunc {
	return middleware.AdminRequired(a.auth)
}

func (a *BaseController) checkRate() gin.HandlerFunc {
	if a.throttle == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return a.throttle
}

// serverError reports a storage or other unexpected failure without leaking its text.
func serverError(c *gin.Context, err error) {
	if errors.Is(err, service.ErrStorage) {
		logger.Error("storage err:", err)
	} else {
		logger.Error("request err:", err)
	}
	pureJsonMsg(c, http.StatusInternalServerError, false, "Internal error")
}

func currentUsername(c *gin.Context) string {
	return c.GetString(middleware.UserKey)
}
