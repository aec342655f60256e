package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"autotest-console/internal/router"
)

const locationKey = "console.location"

// SessionService is the slice of the session store the console exposes.
type SessionService interface {
	Login(ctx context.Context, username, password string) bool
	Logout(ctx context.Context) bool
	IsLoggedIn() bool
	User() json.RawMessage
}

// ConsoleHandler serves the console routes through the navigation guard and
// the session actions behind the login view.
type ConsoleHandler struct {
	router  *router.Router
	session SessionService
	logger  *logrus.Entry
}

func NewConsoleHandler(r *router.Router, session SessionService, logger *logrus.Logger) *ConsoleHandler {
	return &ConsoleHandler{
		router:  r,
		session: session,
		logger:  logger.WithField("component", "console"),
	}
}

// RegisterRoutes mounts the console on engine. It switches the engine to raw
// path routing so an escaped "/" inside a path parameter stays in that
// parameter.
func (h *ConsoleHandler) RegisterRoutes(engine *gin.Engine) {
	engine.UseRawPath = true
	for _, path := range h.router.Paths() {
		engine.GET(path, h.navigate, h.render)
	}
	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	sess := engine.Group("/session")
	{
		sess.GET("", h.sessionState)
		sess.POST("/login", h.login)
		sess.POST("/logout", h.logout)
	}
	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": "ok"})
	})
}

// navigate runs the router for the requested escaped path and redirects when
// the settled location differs from it.
func (h *ConsoleHandler) navigate(c *gin.Context) {
	requested := c.Request.URL.EscapedPath()
	loc, err := h.router.Navigate(requested)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, router.ErrNotFound) {
			status = http.StatusNotFound
		}
		h.logger.WithError(err).WithField("path", requested).Warn("navigation failed")
		c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
		return
	}

	if loc.Path != requested {
		h.logger.WithFields(logrus.Fields{"from": requested, "to": loc.Path}).Debug("navigation redirected")
		c.Redirect(http.StatusFound, loc.Path)
		c.Abort()
		return
	}

	c.Set(locationKey, loc)
	c.Next()
}

func (h *ConsoleHandler) render(c *gin.Context) {
	loc := c.MustGet(locationKey).(router.Location)
	page, err := h.router.Render(c.Request.Context(), loc)
	if err != nil {
		h.logger.WithError(err).WithField("route", loc.Name).Error("render failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, page)
}

type sessionResponse struct {
	LoggedIn bool            `json:"logged_in"`
	User     json.RawMessage `json:"user"`
}

func (h *ConsoleHandler) sessionState(c *gin.Context) {
	user := h.session.User()
	if user == nil {
		user = json.RawMessage("null")
	}
	c.JSON(http.StatusOK, sessionResponse{LoggedIn: h.session.IsLoggedIn(), User: user})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *ConsoleHandler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": err.Error()})
		return
	}

	if !h.session.Login(c.Request.Context(), req.Username, req.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "login failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "user": h.session.User()})
}

func (h *ConsoleHandler) logout(c *gin.Context) {
	if !h.session.Logout(c.Request.Context()) {
		c.JSON(http.StatusBadGateway, gin.H{"ok": false, "error": "logout failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
