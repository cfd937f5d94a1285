package app

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lectern-edu/lectern-payments/internal/enrollment"
	"github.com/lectern-edu/lectern-payments/internal/gateway"
	"github.com/lectern-edu/lectern-payments/internal/ledger"
	"github.com/lectern-edu/lectern-payments/internal/payments"
	stripewebhook "github.com/lectern-edu/lectern-payments/internal/webhooks/stripe"
	"github.com/lectern-edu/lectern-payments/pkg/db"
	"github.com/lectern-edu/lectern-payments/pkg/metrics"
	"github.com/lectern-edu/lectern-payments/pkg/outbox"
	pkgstripe "github.com/lectern-edu/lectern-payments/pkg/stripe"
)

// PaymentStack is the payment lifecycle wired against one database. The API
// and the reconcile cron share it so every transition emits the same outbox
// events whichever process drives it.
type PaymentStack struct {
	Payments  payments.Service
	Webhooks  *stripewebhook.Service
	Ledger    *ledger.Ledger
	Outbox    *outbox.Repository
	StripeEnv string
}

func (rt *Runtime) PaymentStack(ctx context.Context, dbClient *db.Client, reg prometheus.Registerer) (*PaymentStack, error) {
	logg := rt.Logger
	stripeClient, err := pkgstripe.NewClient(ctx, rt.Config.Gateway, logg)
	if err != nil {
		return nil, err
	}
	gw, err := gateway.NewStripeGateway(stripeClient, metrics.NewGatewayMetrics(reg), logg)
	if err != nil {
		return nil, err
	}

	outboxRepo := outbox.NewRepository(dbClient.DB())
	events := outbox.NewService(outboxRepo, logg)
	linkage, err := enrollment.NewOutboxLinkage(events, logg)
	if err != nil {
		return nil, err
	}
	repo := payments.NewRepository(dbClient.DB())
	transitioner, err := payments.NewTransitioner(repo, linkage, payments.NewOutboxNotifier(events), logg)
	if err != nil {
		return nil, err
	}

	svc, err := payments.NewService(payments.ServiceParams{
		Repo:              repo,
		Gateway:           gw,
		Transitioner:      transitioner,
		Actors:            payments.SubjectDirectory{},
		TransactionRunner: dbClient,
		Logger:            logg,
	})
	if err != nil {
		return nil, err
	}

	ldg := ledger.New(dbClient.DB())
	hooks, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Gateway:           gw,
		Ledger:            ldg,
		Transitioner:      transitioner,
		TransactionRunner: dbClient,
		Metrics:           metrics.NewWebhookMetrics(reg),
		Logger:            logg,
	})
	if err != nil {
		return nil, err
	}
	return &PaymentStack{
		Payments:  svc,
		Webhooks:  hooks,
		Ledger:    ldg,
		Outbox:    outboxRepo,
		StripeEnv: stripeClient.Environment(),
	}, nil
}
