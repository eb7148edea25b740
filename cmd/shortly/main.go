package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/httplog/v2"
	"github.com/joho/godotenv"

	"shortly/internal/app"
	"shortly/internal/config"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		slog.Error("application terminated", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// Missing .env is fine, secrets may come from the real environment.
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Env)

	return app.Run(ctx, cfg, logger)
}

func newLogger(env string) *httplog.Logger {
	opts := httplog.Options{
		LogLevel:        slog.LevelDebug,
		Concise:         true,
		RequestHeaders:  true,
		TimeFieldFormat: time.RFC3339,
	}

	switch env {
	case config.EnvStage:
		opts.JSON = true
		opts.LogLevel = slog.LevelInfo
	case config.EnvProd:
		opts.JSON = true
		opts.LogLevel = slog.LevelInfo
		opts.Concise = false
	}

	return httplog.NewLogger("shortly", opts)
}
