// Package app holds the process plumbing shared by the api, cron-worker and
// outbox-publisher binaries: env loading, logger setup, owned connections and
// signal-driven shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/lectern-edu/lectern-payments/pkg/config"
	"github.com/lectern-edu/lectern-payments/pkg/db"
	"github.com/lectern-edu/lectern-payments/pkg/instance"
	"github.com/lectern-edu/lectern-payments/pkg/logger"
	"github.com/lectern-edu/lectern-payments/pkg/migrate"
	"github.com/lectern-edu/lectern-payments/pkg/redis"
)

// Runtime is one process's config, logger and the connections it must close.
type Runtime struct {
	Config *config.Config
	Logger *logger.Logger

	closers []io.Closer
}

// Main loads the runtime for kind, runs fn until SIGINT or SIGTERM and exits
// non-zero when fn fails for any reason other than shutdown.
func Main(kind string, fn func(ctx context.Context, rt *Runtime) error) {
	rt, err := Load(kind)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", kind, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	ctx = rt.Logger.WithFields(ctx, map[string]any{
		"env":         rt.Config.App.Env,
		"serviceKind": kind,
		"instance":    instance.GetID(),
	})

	err = fn(ctx, rt)
	stop()
	rt.Close(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		rt.Logger.Error(ctx, kind+" stopped", err)
		os.Exit(1)
	}
	rt.Logger.Info(ctx, kind+" shut down")
}

// Load reads .env when present, then the environment.
func Load(kind string) (*Runtime, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read .env: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	cfg.Service.Kind = kind
	return &Runtime{
		Config: cfg,
		Logger: logger.New(logger.Options{
			ServiceName: kind,
			Level:       logger.ParseLevel(cfg.App.LogLevel),
			Format:      cfg.App.LogFormat,
			WarnStack:   cfg.App.LogWarnStack,
		}),
	}, nil
}

// Own registers c to be closed, in reverse order, when the process exits.
func (rt *Runtime) Own(c io.Closer) {
	rt.closers = append(rt.closers, c)
}

func (rt *Runtime) Close(ctx context.Context) {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i].Close(); err != nil {
			rt.Logger.Error(ctx, "close failed", err)
		}
	}
	rt.closers = nil
}

// Database connects to Postgres and applies dev migrations when enabled.
func (rt *Runtime) Database(ctx context.Context) (*db.Client, error) {
	client, err := db.New(ctx, rt.Config.DB, rt.Logger)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	rt.Own(client)
	if err := migrate.MaybeRunDev(ctx, rt.Config, rt.Logger, client); err != nil {
		return nil, fmt.Errorf("dev migrations: %w", err)
	}
	return client, nil
}

func (rt *Runtime) Redis(ctx context.Context) (*redis.Client, error) {
	client, err := redis.New(ctx, rt.Config.Redis, rt.Logger)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	rt.Own(client)
	return client, nil
}
