package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"autotest-console/internal/config"
	apphttp "autotest-console/internal/http"
	"autotest-console/internal/repository/sqlite"
	"autotest-console/internal/service"
)

// Backend is the development login backend the console talks to.
type Backend struct {
	Users service.UserService

	engine *gin.Engine
	db     *sql.DB
}

func NewBackend(ctx context.Context, cfg config.Config, logger *logrus.Logger) (*Backend, error) {
	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		return nil, fmt.Errorf("auth jwt secret is required")
	}

	db, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	userRepo := sqlite.NewUserRepository(db)
	if err := userRepo.Init(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("init user repository: %w", err)
	}

	users := service.NewUserService(userRepo)
	created, err := users.EnsureSeedUser(ctx, cfg.Auth.SeedUsername, cfg.Auth.SeedPassword, cfg.Auth.SeedUsername)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("seed user: %w", err)
	}
	if created {
		logger.Infof("created initial user %s", cfg.Auth.SeedUsername)
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), apphttp.RequestLogger(logger))
	handler := apphttp.NewAuthHandler(
		users,
		cfg.Auth.JWTSecret,
		time.Duration(cfg.Auth.TokenTTLMinutes)*time.Minute,
		logger,
	)
	handler.RegisterRoutes(engine, cfg.Auth.AllowedOrigin)

	return &Backend{Users: users, engine: engine, db: db}, nil
}

func (b *Backend) Handler() http.Handler {
	return b.engine
}

func (b *Backend) Close() error {
	return b.db.Close()
}
