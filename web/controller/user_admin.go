package controller

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/paralegal-agent/paralegal/logger"
	"github.com/paralegal-agent/paralegal/web/entity"
	"github.com/paralegal-agent/paralegal/web/service"

	"github.com/gin-gonic/gin"
)

// UserAdminController serves user administration and invites. Every route
// requires an admin session.
type UserAdminController struct {
	BaseController

	users    *service.UserService
	accounts *service.AccountService
}

func NewUserAdminController(g *gin.RouterGroup, auth *service.AuthService, users *service.UserService, accounts *service.AccountService) *UserAdminController {
	a := &UserAdminController{
		BaseController: BaseController{auth: auth},
		users:          users,
		accounts:       accounts,
	}
	a.initRouter(g)
	return a
}

func (a *UserAdminController) initRouter(g *gin.RouterGroup) {
	admin := g.Group("/admin")
	admin.Use(a.checkAdmin())
	{
		admin.GET("/users", a.list)
		admin.POST("/users", a.create)
		admin.DELETE("/users/:username", a.delete)
		admin.POST("/users/:username/admin", a.setAdmin)
		admin.POST("/users/:username/email", a.setEmail)
		admin.POST("/invite", a.invite)
		admin.GET("/logs", a.logs)
	}
}

func (a *UserAdminController) list(c *gin.Context) {
	users, err := a.users.List()
	if err != nil {
		serverError(c, err)
		return
	}
	jsonObj(c, users, nil)
}

func (a *UserAdminController) create(c *gin.Context) {
	var form entity.UserForm
	if err := c.ShouldBind(&form); err != nil {
		pureJsonMsg(c, http.StatusBadRequest, false, "Invalid form data")
		return
	}
	if form.Username == "" || form.Password == "" {
		pureJsonMsg(c, http.StatusOK, false, "Username and password required")
		return
	}
	if err := a.users.Upsert(form.Username, form.Password, form.IsAdmin); err != nil {
		if errors.Is(err, service.ErrInvalidInput) {
			pureJsonMsg(c, http.StatusBadRequest, false, "Invalid username or password")
			return
		}
		serverError(c, err)
		return
	}
	if form.Email != "" {
		if err := a.users.SetEmail(form.Username, form.Email); err != nil {
			serverError(c, err)
			return
		}
	}
	logger.Infof("%s saved user %s (admin=%v)", currentUsername(c), form.Username, form.IsAdmin)
	jsonMsg(c, "Created user "+form.Username, nil)
}

func (a *UserAdminController) delete(c *gin.Context) {
	username := c.Param("username")
	if err := a.users.Delete(username); err != nil {
		serverError(c, err)
		return
	}
	logger.Infof("%s deleted user %s", currentUsername(c), username)
	jsonMsg(c, "Deleted user "+username, nil)
}

func (a *UserAdminController) setAdmin(c *gin.Context) {
	var form entity.AdminFlagForm
	if err := c.ShouldBind(&form); err != nil {
		pureJsonMsg(c, http.StatusBadRequest, false, "Invalid form data")
		return
	}
	username := c.Param("username")
	if err := a.users.SetAdmin(username, form.IsAdmin); err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			pureJsonMsg(c, http.StatusNotFound, false, "User "+username+" not found")
			return
		}
		serverError(c, err)
		return
	}
	logger.Infof("%s set admin=%v for %s", currentUsername(c), form.IsAdmin, username)
	jsonMsg(c, "Updated user "+username, nil)
}

func (a *UserAdminController) setEmail(c *gin.Context) {
	var form entity.EmailForm
	if err := c.ShouldBind(&form); err != nil {
		pureJsonMsg(c, http.StatusBadRequest, false, "Invalid form data")
		return
	}
	username := c.Param("username")
	if err := a.users.SetEmail(username, form.Email); err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			pureJsonMsg(c, http.StatusNotFound, false, "User "+username+" not found")
			return
		}
		serverError(c, err)
		return
	}
	logger.Infof("%s changed the email of %s", currentUsername(c), username)
	jsonMsg(c, "Updated user "+username, nil)
}

func (a *UserAdminController) invite(c *gin.Context) {
	var form entity.InviteForm
	if err := c.ShouldBind(&form); err != nil {
		pureJsonMsg(c, http.StatusBadRequest, false, "Invalid form data")
		return
	}
	if form.Username == "" || form.Email == "" {
		pureJsonMsg(c, http.StatusOK, false, "Username and email required")
		return
	}
	res, err := a.accounts.Invite(form.Username, form.Email, baseURL(c))
	switch {
	case errors.Is(err, service.ErrUserExists):
		pureJsonMsg(c, http.StatusConflict, false, "User "+form.Username+" already exists")
		return
	case err != nil:
		serverError(c, err)
		return
	}
	if res.Sent {
		jsonMsgObj(c, "Invite sent to "+form.Email, res, nil)
		return
	}
	c.JSON(http.StatusOK, entity.Msg{Success: false, Msg: "Failed to send invite email", Obj: res})
}

func (a *UserAdminController) logs(c *gin.Context) {
	count, err := strconv.Atoi(c.DefaultQuery("count", "100"))
	if err != nil || count <= 0 {
		count = 100
	}
	jsonObj(c, logger.GetLogs(count, c.DefaultQuery("level", "INFO")), nil)
}
