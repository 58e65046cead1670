package controller

import (
	"errors"
	"net/http"

	"github.com/paralegal-agent/paralegal/database/model"
	"github.com/paralegal-agent/paralegal/logger"
	"github.com/paralegal-agent/paralegal/web/entity"
	"github.com/paralegal-agent/paralegal/web/service"

	"github.com/gin-gonic/gin"
)

const resetRequestedMsg = "If the account exists, a password-reset link will be sent to the email on file."

// AccountController serves the self-service invite acceptance and password
// reset endpoints. None of them require a session.
type AccountController struct {
	BaseController

	accounts *service.AccountService
}

func NewAccountController(g *gin.RouterGroup, accounts *service.AccountService, throttle gin.HandlerFunc) *AccountController {
	a := &AccountController{BaseController: BaseController{throttle: throttle}, accounts: accounts}
	a.initRouter(g)
	return a
}

func (a *AccountController) initRouter(g *gin.RouterGroup) {
	g.GET("/join", a.peek(model.TokenInvite))
	g.POST("/join", a.checkRate(), a.join)
	g.POST("/reset", a.checkRate(), a.requestReset)
	g.GET("/reset-password", a.peek(model.TokenPasswordReset))
	g.POST("/reset-password", a.checkRate(), a.completeReset)
}

func (a *AccountController) peek(tokenType model.TokenType) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			pureJsonMsg(c, http.StatusBadRequest, false, "Invalid or missing token")
			return
		}
		username, ok, err := a.accounts.Peek(token, tokenType)
		if err != nil {
			serverError(c, err)
			return
		}
		if !ok {
			pureJsonMsg(c, http.StatusGone, false, service.ErrTokenInvalid.Error())
			return
		}
		jsonObj(c, gin.H{"username": username}, nil)
	}
}

func bindPasswordForm(c *gin.Context) (entity.PasswordForm, bool) {
	var form entity.PasswordForm
	if err := c.ShouldBind(&form); err != nil {
		pureJsonMsg(c, http.StatusBadRequest, false, "Invalid form data")
		return form, false
	}
	if form.Token == "" {
		form.Token = c.Query("token")
	}
	if form.Password == "" || form.Password != form.Confirm {
		pureJsonMsg(c, http.StatusOK, false, "Passwords do not match or are empty")
		return form, false
	}
	return form, true
}

func (a *AccountController) join(c *gin.Context) {
	form, ok := bindPasswordForm(c)
	if !ok {
		return
	}
	_, err := a.accounts.Join(form.Token, form.Password)
	if err != nil {
		a.passwordError(c, err)
		return
	}
	jsonMsg(c, "Account created successfully! Please sign in.", nil)
}

func (a *AccountController) completeReset(c *gin.Context) {
	form, ok := bindPasswordForm(c)
	if !ok {
		return
	}
	_, err := a.accounts.CompleteReset(form.Token, form.Password)
	if err != nil {
		a.passwordError(c, err)
		return
	}
	jsonMsg(c, "Password reset successfully! Please sign in.", nil)
}

func (a *AccountController) passwordError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrPasswordTooShort):
		pureJsonMsg(c, http.StatusOK, false, "Password must be at least 8 characters")
	case errors.Is(err, service.ErrTokenInvalid):
		pureJsonMsg(c, http.StatusGone, false, err.Error())
	case errors.Is(err, service.ErrUserExists), errors.Is(err, service.ErrUserNotFound):
		pureJsonMsg(c, http.StatusConflict, false, err.Error())
	case errors.Is(err, service.ErrInvalidInput):
		pureJsonMsg(c, http.StatusBadRequest, false, "Invalid password")
	default:
		serverError(c, err)
	}
}

func (a *AccountController) requestReset(c *gin.Context) {
	var form entity.ResetRequestForm
	if err := c.ShouldBind(&form); err != nil {
		pureJsonMsg(c, http.StatusBadRequest, false, "Invalid form data")
		return
	}
	err := a.accounts.RequestReset(form.Username, baseURL(c))
	switch {
	case err == nil:
	case errors.Is(err, service.ErrMailFailed):
		// Only existing accounts get this far; answer like any other request.
		logger.Warning("password-reset mail failed:", err)
	default:
		serverError(c, err)
		return
	}
	jsonMsg(c, resetRequestedMsg, nil)
}
