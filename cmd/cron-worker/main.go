package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lectern-edu/lectern-payments/internal/app"
	"github.com/lectern-edu/lectern-payments/internal/cron"
	"github.com/lectern-edu/lectern-payments/pkg/db"
	"github.com/lectern-edu/lectern-payments/pkg/metrics"
)

func main() {
	app.Main("cron-worker", work)
}

func work(ctx context.Context, rt *app.Runtime) error {
	dbClient, err := rt.Database(ctx)
	if err != nil {
		return err
	}
	redisClient, err := rt.Redis(ctx)
	if err != nil {
		return err
	}

	env := rt.Config.App.Env
	if env == "" {
		env = "local"
	}
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("cron-worker:"+env), 0)
	if err != nil {
		return err
	}
	jobs, err := registerJobs(ctx, rt, dbClient)
	if err != nil {
		return err
	}
	svc, err := cron.NewService(cron.ServiceParams{
		Logger:   rt.Logger,
		Registry: jobs,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: rt.Config.Cron.Interval,
	})
	if err != nil {
		return err
	}

	rt.Logger.Info(rt.Logger.WithField(ctx, "jobs", jobs.Names()), "cron worker starting")
	return svc.Run(ctx)
}

func registerJobs(ctx context.Context, rt *app.Runtime, dbClient *db.Client) (*cron.Registry, error) {
	cfg := rt.Config
	stack, err := rt.PaymentStack(ctx, dbClient, prometheus.DefaultRegisterer)
	if err != nil {
		return nil, err
	}

	reconcile, err := cron.NewPendingPaymentReconcileJob(cron.PendingPaymentReconcileJobParams{
		Logger:     rt.Logger,
		Payments:   stack.Payments,
		StaleAfter: cfg.Cron.StalePaymentAfter,
		BatchSize:  cfg.Cron.ReconcileBatchSize,
	})
	if err != nil {
		return nil, err
	}
	ledgerRetention, err := cron.NewRetentionJob(cron.RetentionJobParams{
		Name:      "processed-event-retention",
		Logger:    rt.Logger,
		DB:        dbClient,
		Prune:     stack.Ledger.PruneBefore,
		Retention: cfg.Webhooks.LedgerRetention,
	})
	if err != nil {
		return nil, err
	}
	outboxRetention, err := cron.NewOutboxRetentionJob(rt.Logger, dbClient, stack.Outbox, cfg.Cron.OutboxRetention)
	if err != nil {
		return nil, err
	}
	return cron.NewRegistry(reconcile, ledgerRetention, outboxRetention)
}
