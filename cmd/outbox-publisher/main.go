package main

import (
	"context"
	"fmt"

	"github.com/lectern-edu/lectern-payments/internal/analytics"
	"github.com/lectern-edu/lectern-payments/internal/app"
	"github.com/lectern-edu/lectern-payments/internal/relay"
	"github.com/lectern-edu/lectern-payments/pkg/bigquery"
	"github.com/lectern-edu/lectern-payments/pkg/outbox"
	"github.com/lectern-edu/lectern-payments/pkg/outbox/registry"
	"github.com/lectern-edu/lectern-payments/pkg/pubsub"
)

func main() {
	app.Main("outbox-publisher", publish)
}

func publish(ctx context.Context, rt *app.Runtime) error {
	cfg := rt.Config
	dbClient, err := rt.Database(ctx)
	if err != nil {
		return err
	}
	ps, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, rt.Logger)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}
	rt.Own(ps)

	sink, err := settlementSink(ctx, rt)
	if err != nil {
		return err
	}
	routes, err := registry.NewEventRegistry(cfg.PubSub)
	if err != nil {
		return fmt.Errorf("event registry: %w", err)
	}

	r, err := relay.New(relay.Params{
		Logger:      rt.Logger,
		DB:          dbClient,
		Publisher:   ps,
		Store:       outbox.NewRepository(dbClient.DB()),
		Resolver:    routes,
		DeadLetters: outbox.NewDLQRepository(dbClient.DB()),
		Settlements: sink,
		Config:      cfg.Outbox,
	})
	if err != nil {
		return err
	}
	rt.Logger.Info(ctx, "outbox publisher starting")
	return r.Run(ctx)
}

// settlementSink is nil unless a BigQuery dataset is configured.
func settlementSink(ctx context.Context, rt *app.Runtime) (relay.SettlementSink, error) {
	if !rt.Config.BigQuery.Enabled() {
		return nil, nil
	}
	bq, err := bigquery.NewClient(ctx, rt.Config.GCP, rt.Config.BigQuery, rt.Logger)
	if err != nil {
		return nil, fmt.Errorf("bigquery: %w", err)
	}
	rt.Own(bq)
	return analytics.NewSettlementWriter(bq, rt.Config.BigQuery.SettlementsTable, analytics.RetryPolicy{})
}
