package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"autotest-console/internal/app"
	"autotest-console/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("load config: %v", err)
	}
	logger := app.NewLogger(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gin.SetMode(gin.ReleaseMode)
	backend, err := app.NewBackend(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("setup backend: %v", err)
	}
	defer backend.Close()

	if err := app.Serve(ctx, cfg.Backend.Addr, backend.Handler(), logger); err != nil {
		logger.Errorf("http server: %v", err)
	}
	logger.Info("bye")
}
