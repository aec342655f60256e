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
	console, err := app.NewConsole(ctx, cfg, logger, app.ConsoleOptions{})
	if err != nil {
		logger.Fatalf("setup console: %v", err)
	}
	defer console.Close()

	logger.Infof("backend at %s, signed in: %t", console.Client.BaseURL(), console.Session.IsLoggedIn())
	if err := app.Serve(ctx, cfg.Server.Addr, console.Handler(), logger); err != nil {
		logger.Errorf("http server: %v", err)
	}
	logger.Info("bye")
}
