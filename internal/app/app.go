// Package app assembles the console and the development backend from
// configuration.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"autotest-console/internal/apiclient"
	"autotest-console/internal/config"
	apphttp "autotest-console/internal/http"
	"autotest-console/internal/repository/sqlite"
	"autotest-console/internal/router"
	"autotest-console/internal/session"
	"autotest-console/internal/storage"
)

// Console is the assembled console: API client, session store, router and
// the gin engine serving them.
type Console struct {
	Client  *apiclient.Client
	Session *session.Store
	Router  *router.Router
	Views   *router.Registry

	engine *gin.Engine
	db     *sql.DB
}

// ConsoleOptions overrides parts of the wiring. Tests use it to swap the
// transport or the storage backend.
type ConsoleOptions struct {
	HTTPClient *http.Client
	Storage    storage.Store
}

func NewConsole(ctx context.Context, cfg config.Config, logger *logrus.Logger, opts ConsoleOptions) (*Console, error) {
	c := &Console{}

	store := opts.Storage
	if store == nil {
		var err error
		store, c.db, err = buildStorage(ctx, cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("setup storage: %w", err)
		}
	}

	client, err := apiclient.New(apiclient.Config{
		BaseURL:    cfg.API.BaseURL,
		HTTPClient: opts.HTTPClient,
		Logger:     logger,
	})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("setup api client: %w", err)
	}
	c.Client = client

	sess, err := session.New(ctx, client, store, logger,
		session.WithClearOnLogoutFailure(cfg.Session.ClearOnLogoutFailure))
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("setup session: %w", err)
	}
	c.Session = sess

	c.Views = router.DefaultRegistry(sess)
	c.Router, err = router.New(router.DefaultRoutes(), c.Views, router.AuthGuard(sess))
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("setup router: %w", err)
	}

	c.engine = gin.New()
	c.engine.Use(gin.Recovery(), apphttp.RequestLogger(logger))
	apphttp.NewConsoleHandler(c.Router, sess, logger).RegisterRoutes(c.engine)
	return c, nil
}

func (c *Console) Handler() http.Handler {
	return c.engine
}

func (c *Console) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

// buildStorage opens the configured local storage backend. The returned
// database is nil unless the backend owns one.
func buildStorage(ctx context.Context, cfg config.Config, logger *logrus.Logger) (storage.Store, *sql.DB, error) {
	switch cfg.Storage.Backend {
	case "", "sqlite":
		db, err := sqlite.Open(cfg.Storage.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open local storage: %w", err)
		}
		store := storage.NewSQLiteStore(db)
		if err := store.Init(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("init local storage: %w", err)
		}
		logger.Infof("using local storage at %s", cfg.Storage.Path)
		return store, db, nil
	case "memory":
		logger.Warn("using in-memory local storage; sessions will not survive a restart")
		return storage.NewMemoryStore(), nil, nil
	case "s3":
		store, err := buildS3Storage(ctx, cfg, logger)
		return store, nil, err
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func buildS3Storage(ctx context.Context, cfg config.Config, logger *logrus.Logger) (storage.Store, error) {
	if cfg.Storage.Bucket == "" {
		return nil, fmt.Errorf("storage bucket is required")
	}

	loadOpts := []func(*awscfg.LoadOptions) error{
		awscfg.WithRegion(cfg.Storage.Region),
	}
	if cfg.AWS.Profile != "" {
		loadOpts = append(loadOpts, awscfg.WithSharedConfigProfile(cfg.AWS.Profile))
	}

	awsCfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Storage.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Storage.Endpoint)
			o.UsePathStyle = true
		}
	})
	logger.Infof("using s3 bucket %s (region %s) for local storage", cfg.Storage.Bucket, cfg.Storage.Region)
	return storage.NewS3Store(client, cfg.Storage.Bucket, cfg.Storage.KeyPrefix)
}
