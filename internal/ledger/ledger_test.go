package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/lectern-edu/lectern-payments/pkg/db/dbtest"
	"github.com/lectern-edu/lectern-payments/pkg/db/models"
	"github.com/lectern-edu/lectern-payments/pkg/enums"
)

func TestRecordRejectsDuplicates(t *testing.T) {
	db := dbtest.Open(t, "ledger_dup")
	l := New(db)
	ctx := context.Background()

	exists, err := l.Exists(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, l.Record(ctx, nil, Entry{EventID: "evt_1", EventType: "payment_intent.succeeded", Outcome: enums.WebhookOutcomeApplied}))

	exists, err = l.Exists(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, exists)

	err = l.Record(ctx, nil, Entry{EventID: "evt_1", Outcome: enums.WebhookOutcomeApplied})
	assert.ErrorIs(t, err, ErrAlreadyProcessed)
}

func TestRecordValidatesEntry(t *testing.T) {
	l := New(dbtest.Open(t, "ledger_validate"))
	assert.Error(t, l.Record(context.Background(), nil, Entry{EventID: " ", Outcome: enums.WebhookOutcomeApplied}))
	assert.Error(t, l.Record(context.Background(), nil, Entry{EventID: "evt_2", Outcome: "maybe"}))
}

func TestRecordRollsBackWithTransaction(t *testing.T) {
	db := dbtest.Open(t, "ledger_tx")
	l := New(db)
	ctx := context.Background()

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := l.Record(ctx, tx, Entry{EventID: "evt_tx", Outcome: enums.WebhookOutcomeApplied}); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	exists, err := l.Exists(ctx, "evt_tx")
	require.NoError(t, err)
	assert.False(t, exists, "rolled back entry must not remain")
}

func TestResolveUpdatesOutcome(t *testing.T) {
	db := dbtest.Open(t, "ledger_resolve")
	l := New(db)
	ctx := context.Background()
	paymentID := uuid.New()

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		if err := l.Record(ctx, tx, Entry{EventID: "evt_r", Outcome: enums.WebhookOutcomeApplied}); err != nil {
			return err
		}
		return l.Resolve(ctx, tx, "evt_r", enums.WebhookOutcomeIgnored, &paymentID)
	}))

	var row models.ProcessedEvent
	require.NoError(t, db.First(&row, "event_id = ?", "evt_r").Error)
	assert.Equal(t, enums.WebhookOutcomeIgnored, row.Outcome)
	require.NotNil(t, row.PaymentID)
	assert.Equal(t, paymentID, *row.PaymentID)
}

func TestPruneBeforeRemovesOnlyOldEntries(t *testing.T) {
	db := dbtest.Open(t, "ledger_prune")
	l := New(db)
	ctx := context.Background()
	now := time.Now().UTC()

	l.now = func() time.Time { return now.Add(-100 * 24 * time.Hour) }
	require.NoError(t, l.Record(ctx, nil, Entry{EventID: "evt_old", Outcome: enums.WebhookOutcomeApplied}))
	l.now = func() time.Time { return now }
	require.NoError(t, l.Record(ctx, nil, Entry{EventID: "evt_new", Outcome: enums.WebhookOutcomeApplied}))

	removed, err := l.PruneBefore(ctx, nil, now.Add(-90*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	exists, err := l.Exists(ctx, "evt_new")
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = l.Exists(ctx, "evt_old")
	require.NoError(t, err)
	assert.False(t, exists)
}
