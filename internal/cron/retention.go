package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/lectern-edu/lectern-payments/pkg/logger"
)

const (
	DefaultOutboxRetention = 30 * 24 * time.Hour
	// DefaultLedgerRetention keeps processed webhook ids well past any
	// gateway redelivery window.
	DefaultLedgerRetention = 90 * 24 * time.Hour
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// PruneFunc deletes rows older than cutoff and returns how many went.
type PruneFunc func(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)

type RetentionJobParams struct {
	Name      string
	Logger    *logger.Logger
	DB        txRunner
	Prune     PruneFunc
	Retention time.Duration
}

type retentionJob struct {
	name      string
	logg      *logger.Logger
	db        txRunner
	prune     PruneFunc
	retention time.Duration
	now       func() time.Time
}

// NewRetentionJob wraps a prune step that runs in its own transaction with a
// cutoff of now minus Retention.
func NewRetentionJob(params RetentionJobParams) (Job, error) {
	switch {
	case params.Name == "":
		return nil, fmt.Errorf("retention job name required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.DB == nil:
		return nil, fmt.Errorf("db runner required")
	case params.Prune == nil:
		return nil, fmt.Errorf("prune func required")
	case params.Retention <= 0:
		return nil, fmt.Errorf("%s: retention must be positive", params.Name)
	}
	return &retentionJob{
		name:      params.Name,
		logg:      params.Logger,
		db:        params.DB,
		prune:     params.Prune,
		retention: params.Retention,
		now:       time.Now,
	}, nil
}

// NewOutboxRetentionJob drops published outbox rows.
func NewOutboxRetentionJob(logg *logger.Logger, db txRunner, repo interface {
	DeletePublishedBefore(tx *gorm.DB, cutoff time.Time) (int64, error)
}, retention time.Duration) (Job, error) {
	if repo == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	return NewRetentionJob(RetentionJobParams{
		Name:   "outbox-retention",
		Logger: logg,
		DB:     db,
		Prune: func(_ context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
			return repo.DeletePublishedBefore(tx, cutoff)
		},
		Retention: retention,
	})
}

func (j *retentionJob) Name() string { return j.name }

func (j *retentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	var removed int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) (err error) {
		removed, err = j.prune(ctx, tx, cutoff)
		return err
	})
	if err != nil {
		return fmt.Errorf("%s: %w", j.name, err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff.Format(time.RFC3339),
		"rows_removed": removed,
	}), "retention sweep complete")
	return nil
}
