package http

import (
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"autotest-console/internal/domain"
	"autotest-console/internal/service"
)

const (
	sessionCookie   = "session"
	lastLoginLayout = "2006-01-02 15:04:05"
	userIDKey       = "auth.user_id"
)

// AuthHandler serves the backend login endpoints the console talks to.
// Replies always use HTTP 200 with an application code in the body, except
// for requests that lack a valid session.
type AuthHandler struct {
	users  service.UserService
	secret []byte
	ttl    time.Duration
	logger *logrus.Entry

	mu      sync.Mutex
	revoked map[string]time.Time
}

func NewAuthHandler(users service.UserService, secret string, ttl time.Duration, logger *logrus.Logger) *AuthHandler {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &AuthHandler{
		users:   users,
		secret:  []byte(secret),
		ttl:     ttl,
		logger:  logger.WithField("component", "auth"),
		revoked: make(map[string]time.Time),
	}
}

func (h *AuthHandler) RegisterRoutes(router *gin.Engine, allowedOrigin string) {
	router.Use(corsMiddleware(allowedOrigin))

	api := router.Group("/api")
	{
		api.POST("/login", h.login)
		api.POST("/logout", h.requireSession, h.logout)
		api.GET("/health", func(ctx *gin.Context) {
			ctx.JSON(http.StatusOK, gin.H{"ok": "ok"})
		})
	}
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type UserResponse struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Nickname  string `json:"nickname"`
	LastLogin string `json:"last_login"`
}

func (h *AuthHandler) login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusOK, gin.H{"code": http.StatusBadRequest, "msg": "invalid request body"})
		return
	}

	user, err := h.users.Login(c.Request.Context(), req.Username, req.Password)
	switch {
	case errors.Is(err, service.ErrMissingCredentials):
		c.JSON(http.StatusOK, gin.H{"code": http.StatusBadRequest, "msg": "username and password are required"})
		return
	case errors.Is(err, service.ErrInvalidCredentials):
		h.logger.WithField("username", req.Username).Info("rejected login")
		c.JSON(http.StatusOK, gin.H{"code": http.StatusUnauthorized, "msg": "invalid username or password"})
		return
	case err != nil:
		h.logger.WithError(err).Error("login")
		c.JSON(http.StatusOK, gin.H{"code": http.StatusInternalServerError, "msg": "login failed: " + err.Error()})
		return
	}

	token, err := h.issueToken(user.ID)
	if err != nil {
		h.logger.WithError(err).Error("issue session token")
		c.JSON(http.StatusOK, gin.H{"code": http.StatusInternalServerError, "msg": "login failed"})
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(sessionCookie, token, int(h.ttl.Seconds()), "/", "", false, true)

	h.logger.WithField("user_id", user.ID).Info("user logged in")
	c.JSON(http.StatusOK, gin.H{
		"code": http.StatusOK,
		"msg":  "login succeeded",
		"data": gin.H{"user": userToResponse(user)},
	})
}

func (h *AuthHandler) logout(c *gin.Context) {
	if claims, ok := c.Get(sessionCookie); ok {
		rc := claims.(*jwt.RegisteredClaims)
		h.revoke(rc.ID, rc.ExpiresAt.Time)
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(sessionCookie, "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "msg": "logged out"})
}

// requireSession rejects requests without a valid, unrevoked session token
// for an existing user.
func (h *AuthHandler) requireSession(c *gin.Context) {
	raw, err := c.Cookie(sessionCookie)
	if err != nil || raw == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "msg": "login required"})
		return
	}

	claims, err := h.parseToken(raw)
	if err != nil || h.isRevoked(claims.ID) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "msg": "login required"})
		return
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "msg": "login required"})
		return
	}
	if _, err := h.users.GetByID(c.Request.Context(), id); err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "msg": "login required"})
		return
	}

	c.Set(sessionCookie, claims)
	c.Set(userIDKey, id)
	c.Next()
}

func (h *AuthHandler) issueToken(userID int64) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   strconv.FormatInt(userID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(h.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.secret)
}

func (h *AuthHandler) parseToken(raw string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return h.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	return claims, nil
}

func (h *AuthHandler) revoke(id string, until time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	now := time.Now()
	for jti, exp := range h.revoked {
		if exp.Before(now) {
			delete(h.revoked, jti)
		}
	}
	h.revoked[id] = until
}

func (h *AuthHandler) isRevoked(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.revoked[id]
	return ok
}

func userToResponse(user *domain.User) UserResponse {
	resp := UserResponse{
		ID:       user.ID,
		Username: user.Username,
		Nickname: user.Nickname,
	}
	if user.LastLogin != nil {
		resp.LastLogin = user.LastLogin.Local().Format(lastLoginLayout)
	}
	return resp
}
