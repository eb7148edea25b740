package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/go-chi/httplog/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	api "shortly/internal/api/http"
	"shortly/internal/auth"
	"shortly/internal/config"
	db "shortly/internal/database/postgres"
	"shortly/internal/ratelimit"
	"shortly/internal/service"
	"shortly/pkg/postgres"
)

const shortCodeLength = 8

// Run wires the application together and serves HTTP until ctx is canceled.
func Run(ctx context.Context, cfg *config.Config, logger *httplog.Logger) error {
	const op = "app.Run"

	pool, err := postgres.New(
		ctx,
		cfg.Postgres.DSN(),
		postgres.WithConnMaxIdleTime(cfg.Postgres.ConnMaxIdleTime),
		postgres.WithConnMaxLifetime(cfg.Postgres.ConnMaxLifetime),
		postgres.WithMaxIdleConns(cfg.Postgres.MaxIdleConns),
		postgres.WithMaxOpenConns(cfg.Postgres.MaxOpenConns),
	)
	if err != nil {
		return fmt.Errorf("%s: failed to connect to database: %w", op, err)
	}
	defer pool.Close()

	if err := postgres.RunMigrations("file://migrations", cfg.Postgres.DSN()); err != nil {
		return fmt.Errorf("%s: failed to run migrations: %w", op, err)
	}

	limiter, err := newLimiter(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("%s: failed to set up rate limiter: %w", op, err)
	}

	urlRepo := db.NewURLRepository(pool)
	urlSvc := service.NewURLService(urlRepo, logger.Logger, shortCodeLength)
	verifier := auth.NewVerifier(cfg.JWTSecret)

	router := api.NewRouter(logger, urlSvc, limiter, verifier, cfg.BaseURL)

	server := &http.Server{
		Addr:           cfg.HTTPServer.Addr(),
		Handler:        router,
		ReadTimeout:    cfg.HTTPServer.ReadTimeout,
		WriteTimeout:   cfg.HTTPServer.WriteTimeout,
		IdleTimeout:    cfg.HTTPServer.IdleTimeout,
		MaxHeaderBytes: cfg.HTTPServer.MaxHeaderBytes,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting server", "addr", server.Addr, "env", cfg.Env)

		var err error

		switch cfg.Env {
		case config.EnvProd:
			err = server.ListenAndServeTLS(cfg.HTTPServer.CertFile, cfg.HTTPServer.KeyFile)
		default:
			err = server.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%s: server error occurred: %w", op, err)
		}

		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		if err := server.Shutdown(context.Background()); err != nil {
			return fmt.Errorf("%s: failed to shutdown server: %w", op, err)
		}

		return nil
	})

	return g.Wait()
}

// newLimiter returns a Redis-backed limiter when a Redis URL is configured,
// falling back to in-process counters otherwise. The fallback keeps single
// instance deployments working without extra infrastructure.
func newLimiter(ctx context.Context, cfg *config.Config, logger *httplog.Logger) (ratelimit.Limiter, error) {
	const op = "app.newLimiter"

	if cfg.Redis.URL == "" {
		logger.Warn("no redis url configured, using in-process rate limiting")
		return ratelimit.NewMemoryLimiter(), nil
	}

	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse redis url: %w", op, err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%s: failed to ping redis: %w", op, err)
	}

	return ratelimit.NewRedisLimiter(client), nil
}
