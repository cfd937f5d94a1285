package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/lectern-edu/lectern-payments/pkg/db/models"
	"github.com/lectern-edu/lectern-payments/pkg/logger"
)

const (
	defaultStalePaymentAfter  = time.Hour
	defaultReconcileBatchSize = 100
)

type PendingPaymentReconcileJobParams struct {
	Logger     *logger.Logger
	Payments   paymentSyncer
	StaleAfter time.Duration
	BatchSize  int
}

type paymentSyncer interface {
	ListStale(ctx context.Context, updatedBefore time.Time, limit int) ([]models.Payment, error)
	SyncFromGateway(ctx context.Context, id uuid.UUID) (*models.Payment, error)
}

// NewPendingPaymentReconcileJob re-reads the gateway for payments whose
// webhook never arrived.
func NewPendingPaymentReconcileJob(params PendingPaymentReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payments service required")
	}
	staleAfter := params.StaleAfter
	if staleAfter <= 0 {
		staleAfter = defaultStalePaymentAfter
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultReconcileBatchSize
	}
	return &pendingPaymentReconcileJob{
		logg:       params.Logger,
		payments:   params.Payments,
		staleAfter: staleAfter,
		batchSize:  batch,
		now:        time.Now,
	}, nil
}

type pendingPaymentReconcileJob struct {
	logg       *logger.Logger
	payments   paymentSyncer
	staleAfter time.Duration
	batchSize  int
	now        func() time.Time
}

func (j *pendingPaymentReconcileJob) Name() string { return "pending-payment-reconcile" }

func (j *pendingPaymentReconcileJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.staleAfter)
	stale, err := j.payments.ListStale(ctx, cutoff, j.batchSize)
	if err != nil {
		return fmt.Errorf("list stale payments: %w", err)
	}

	var (
		settled, failed int
		errs            error
	)
	for _, payment := range stale {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		payCtx := j.logg.WithPaymentID(ctx, payment.ID.String())
		updated, err := j.payments.SyncFromGateway(payCtx, payment.ID)
		if err != nil {
			failed++
			j.logg.Error(payCtx, "reconcile payment failed", err)
			errs = multierr.Append(errs, fmt.Errorf("sync payment %s: %w", payment.ID, err))
			continue
		}
		if updated != nil && updated.Status != payment.Status {
			settled++
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":  cutoff,
		"scanned": len(stale),
		"changed": settled,
		"failed":  failed,
	})
	j.logg.Info(logCtx, "pending payment reconcile complete")
	// Every payment was attempted; the combined error only marks the run failed.
	return errs
}
