package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/draftledger/draftledger/backend/go-services/handlers"
	"github.com/draftledger/draftledger/backend/go-services/internal/config"
	"github.com/draftledger/draftledger/backend/go-services/internal/database"
	"github.com/draftledger/draftledger/backend/go-services/internal/database/migrations"
	"github.com/draftledger/draftledger/backend/go-services/internal/document/handler"
	"github.com/draftledger/draftledger/backend/go-services/internal/document/repository"
	"github.com/draftledger/draftledger/backend/go-services/internal/document/service"
	"github.com/draftledger/draftledger/backend/go-services/internal/document/versions"
	"github.com/draftledger/draftledger/backend/go-services/internal/oidc"
	"github.com/draftledger/draftledger/backend/go-services/internal/revocation"
	"github.com/draftledger/draftledger/backend/go-services/internal/storage"
	"github.com/draftledger/draftledger/backend/go-services/internal/tokens"
	"github.com/draftledger/draftledger/backend/go-services/pkg/logger"
	"github.com/draftledger/draftledger/backend/go-services/pkg/metrics"
	"github.com/draftledger/draftledger/backend/go-services/pkg/middleware"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var autoMigrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			logger.Init(cfg.Server.LogLevel)
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, autoMigrate)
		},
	}
	cmd.Flags().BoolVar(&autoMigrate, "migrate", true, "apply pending SQLite migrations on start")
	return cmd
}

// closers run in reverse order on shutdown.
type closers []func()

func (c closers) run() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

func openRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	if !cfg.Redis.Enabled() {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr(), Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Redis.Addr(), err)
	}
	logger.Infof("connected to Redis at %s", cfg.Redis.Addr())
	return client, nil
}

func openRepository(ctx context.Context, cfg *config.Config, autoMigrate bool, cl *closers) (repository.Repository, error) {
	switch cfg.Storage.Backend {
	case "sqlite":
		db, err := database.OpenSQLite(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, err
		}
		*cl = append(*cl, func() { db.Close() })
		if err := prepareSchema(db, autoMigrate); err != nil {
			return nil, err
		}
		logger.Infof("using SQLite document store at %s", cfg.Storage.SQLitePath)
		return repository.NewSQLiteRepo(db), nil
	case "mongo":
		client, err := database.ConnectMongo(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout, cfg.MongoDB.ConnectAttempts)
		if err != nil {
			return nil, err
		}
		*cl = append(*cl, func() { _ = client.Disconnect(context.Background()) })
		col := client.Database(cfg.MongoDB.Database).Collection(cfg.MongoDB.Collection)
		logger.Infof("using MongoDB document store %s.%s", cfg.MongoDB.Database, cfg.MongoDB.Collection)
		return repository.NewMongoRepo(ctx, col)
	default:
		logger.Warnf("using in-memory document store; data is lost on restart")
		return repository.NewMemoryRepo(), nil
	}
}

func prepareSchema(db *sql.DB, autoMigrate bool) error {
	if autoMigrate {
		return migrations.MigrateUp(db)
	}
	return migrations.CheckStatus(db)
}

func newLocker(cfg *config.Config, rdb *redis.Client) versions.Option {
	if cfg.Versioning.LockBackend == "redis" {
		return versions.WithLocker("redis", versions.NewRedisLocker(rdb, "doclock:", cfg.Versioning.LockTTL, cfg.Versioning.LockWait))
	}
	return versions.WithLocker("local", versions.NewLocalLocker())
}

func newVerifier(ctx context.Context, cfg *config.Config) (middleware.Verifier, error) {
	switch cfg.Auth.Mode {
	case "jwt":
		return tokens.NewHMACVerifier(cfg.JWT.Secret, cfg.JWT.Issuer), nil
	case "oidc":
		if cfg.Keycloak.JWKSURL != "" {
			return oidc.NewJWKSVerifier(ctx, cfg.Keycloak.Issuer(), cfg.Keycloak.JWKSURL, cfg.Keycloak.ClientID), nil
		}
		ver, err := oidc.NewVerifier(ctx, cfg.Keycloak.Issuer(), cfg.Keycloak.ClientID)
		if err != nil {
			return nil, err
		}
		return ver, nil
	}
	return nil, fmt.Errorf("auth mode %q has no token verifier", cfg.Auth.Mode)
}

func serve(ctx context.Context, cfg *config.Config, autoMigrate bool) error {
	var cl closers
	defer cl.run()

	rdb, err := openRedis(ctx, cfg)
	if err != nil {
		return err
	}
	if rdb != nil {
		cl = append(cl, func() { rdb.Close() })
	}

	repo, err := openRepository(ctx, cfg, autoMigrate, &cl)
	if err != nil {
		return err
	}

	var archive service.Archive
	if cfg.MinIO.Enabled() {
		a, err := storage.NewSnapshotArchive(ctx, &cfg.MinIO)
		if err != nil {
			// exports degrade to 503; writes are unaffected
			logger.Warnf("snapshot archive disabled: %v", err)
		} else {
			archive = a
		}
	}

	store := versions.NewStore(repo, newLocker(cfg, rdb))
	svc := service.New(repo, store, service.Options{
		MaxContentChars: cfg.Versioning.MaxContentChars,
		Archive:         archive,
		ExportTTL:       cfg.Versioning.ExportTTL,
	})

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	checks := map[string]handlers.Check{"storage": svc.Ready}
	if rdb != nil {
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	handlers.RegisterHealth(r, checks)
	handlers.RegisterSwagger(r)

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	var identity gin.HandlerFunc
	if cfg.Auth.Mode == "header" {
		logger.Warnf("trusting caller identity from %s; the service must only be reachable through the gateway", cfg.Auth.TrustedHeader)
		identity = middleware.TrustedHeaderIdentity(cfg.Auth.TrustedHeader)
	} else {
		ver, err := newVerifier(ctx, cfg)
		if err != nil {
			return err
		}
		var revoked middleware.RevocationChecker
		if rdb != nil {
			revoked = revocation.NewStore(rdb)
		}
		identity = middleware.AuthMiddleware(ver, revoked)
	}

	api := r.Group("/", identity)
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.Backend == "redis" {
			api.Use(middleware.RedisRateLimitMiddleware(rdb, cfg.RateLimit.RPS, cfg.RateLimit.Burst, cfg.RateLimit.Window))
		} else {
			api.Use(middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
		}
	}
	handler.RegisterDocumentRoutes(api, svc)

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	logger.Infow("starting document service", "addr", srv.Addr, "storage", cfg.Storage.Backend,
		"lock", cfg.Versioning.LockBackend, "auth", cfg.Auth.Mode, "archive", archive != nil)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}
	logger.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
