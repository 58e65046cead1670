package controller

import (
	"net/http"
	"time"

	"github.com/paralegal-agent/paralegal/logger"
	"github.com/paralegal-agent/paralegal/web/entity"
	"github.com/paralegal-agent/paralegal/web/service"
	"github.com/paralegal-agent/paralegal/web/session"

	"github.com/gin-gonic/gin"
)

// IndexController handles login, logout and the current-user endpoint.
type IndexController struct {
	BaseController

	sessionMaxAge int
}

// NewIndexController creates a new IndexController and initializes its routes.
// sessionMaxAge is in minutes; 0 leaves the cookie without an expiry.
func NewIndexController(g *gin.RouterGroup, auth *service.AuthService, throttle gin.HandlerFunc, sessionMaxAge int) *IndexController {
	a := &IndexController{
		BaseController: BaseController{auth: auth, throttle: throttle},
		sessionMaxAge:  sessionMaxAge,
	}
	a.initRouter(g)
	return a
}

func (a *IndexController) initRouter(g *gin.RouterGroup) {
	g.POST("/login", a.checkRate(), a.login)
	g.POST("/logout", a.logout)
	g.GET("/me", a.checkLogin(), a.me)
}

func (a *IndexController) login(c *gin.Context) {
	var form entity.LoginForm
	if err := c.ShouldBind(&form); err != nil {
		pureJsonMsg(c, http.StatusBadRequest, false, "Invalid form data")
		return
	}

	mode, err := a.auth.Mode()
	if err != nil {
		serverError(c, err)
		return
	}
	if mode == service.ModeOpen && form.Username == "" {
		form.Username = "dev"
	}
	if form.Username == "" {
		pureJsonMsg(c, http.StatusOK, false, "Username is required")
		return
	}

	ok, err := a.auth.Authenticate(form.Username, form.Password)
	if err != nil {
		serverError(c, err)
		return
	}
	if !ok {
		logger.Warningf("failed login for %q from %s", form.Username, c.ClientIP())
		pureJsonMsg(c, http.StatusUnauthorized, false, "Invalid credentials")
		return
	}

	if a.sessionMaxAge > 0 {
		session.SetMaxAge(c, int((time.Duration(a.sessionMaxAge) * time.Minute).Seconds()))
	}
	if err := a.auth.Login(session.FromGin(c), form.Username); err != nil {
		serverError(c, err)
		return
	}
	logger.Infof("%s logged in from %s", form.Username, c.ClientIP())
	if mode == service.ModeOpen {
		jsonMsg(c, "Authentication is not configured; signed in as development user", nil)
		return
	}
	jsonMsg(c, "Signed in", nil)
}

func (a *IndexController) logout(c *gin.Context) {
	sess := session.FromGin(c)
	if username, ok := a.auth.CurrentUser(sess); ok {
		logger.Infof("%s logged out", username)
	}
	if err := a.auth.Logout(sess); err != nil {
		logger.Warning("Unable to clear session:", err)
	}
	jsonMsg(c, "Signed out", nil)
}

func (a *IndexController) me(c *gin.Context) {
	username := currentUsername(c)
	admin, err := a.auth.IsAdmin(username)
	if err != nil {
		serverError(c, err)
		return
	}
	jsonObj(c, gin.H{"username": username, "isAdmin": admin}, nil)
}
