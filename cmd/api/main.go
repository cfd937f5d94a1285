package main

import (
	"cmp"
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lectern-edu/lectern-payments/api/routes"
	"github.com/lectern-edu/lectern-payments/internal/app"
)

const (
	shutdownTimeout   = 15 * time.Second
	readHeaderTimeout = 10 * time.Second
)

func main() {
	app.Main("api", serve)
}

func serve(ctx context.Context, rt *app.Runtime) error {
	dbClient, err := rt.Database(ctx)
	if err != nil {
		return err
	}
	redisClient, err := rt.Redis(ctx)
	if err != nil {
		return err
	}
	stack, err := rt.PaymentStack(ctx, dbClient, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}

	server := &http.Server{
		// PORT is injected by the hosting platform and wins over config.
		Addr: ":" + cmp.Or(os.Getenv("PORT"), rt.Config.App.Port),
		Handler: routes.NewRouter(routes.Dependencies{
			Config:           rt.Config,
			Logger:           rt.Logger,
			DB:               dbClient,
			Redis:            redisClient,
			IdempotencyStore: redisClient,
			Payments:         stack.Payments,
			Webhooks:         stack.Webhooks,
			MetricsGatherer:  prometheus.DefaultGatherer,
		}),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	ctx = rt.Logger.WithFields(ctx, map[string]any{"addr": server.Addr, "stripe_env": stack.StripeEnv})
	serveErr := make(chan error, 1)
	go func() { serveErr <- server.ListenAndServe() }()
	rt.Logger.Info(ctx, "api listening")

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return ctx.Err()
}
