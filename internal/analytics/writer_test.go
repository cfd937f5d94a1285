package analytics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/lectern-edu/lectern-payments/pkg/outbox/payloads"
)

type insertCall struct {
	table string
	rows  []any
}

type fakeInserter struct {
	responses []error
	calls     []insertCall
}

func (f *fakeInserter) InsertRows(_ context.Context, table string, rows []any) error {
	f.calls = append(f.calls, insertCall{table: table, rows: rows})
	if len(f.responses) == 0 {
		return nil
	}
	err := f.responses[0]
	f.responses = f.responses[1:]
	return err
}

func newTestWriter(t *testing.T, fake *fakeInserter) *SettlementWriter {
	t.Helper()
	w, err := NewSettlementWriter(fake, " payment_settlements ", RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaximumBackoff: 2 * time.Millisecond,
	})
	require.NoError(t, err)
	return w
}

func settledEvent() payloads.PaymentSettledEvent {
	resource := uuid.New()
	charge := "ch_123"
	return payloads.PaymentSettledEvent{
		PaymentID:        uuid.New(),
		OwnerID:          uuid.New(),
		LinkedResourceID: &resource,
		AmountCents:      5000,
		Currency:         "EUR",
		Status:           "succeeded",
		ExternalIntentID: "pi_123",
		ExternalChargeID: &charge,
		SettledAt:        time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestNewSettlementWriterValidation(t *testing.T) {
	_, err := NewSettlementWriter(nil, "t", RetryPolicy{})
	assert.Error(t, err)
	_, err = NewSettlementWriter(&fakeInserter{}, " ", RetryPolicy{})
	assert.Error(t, err)

	w, err := NewSettlementWriter(&fakeInserter{}, "t", RetryPolicy{})
	require.NoError(t, err)
	assert.Equal(t, defaultMaxAttempts, w.retry.MaxAttempts)
	assert.Equal(t, defaultMaximumBackoff, w.retry.MaximumBackoff)
}

func TestRecordSettlementWritesRowKeyedByEventID(t *testing.T) {
	fake := &fakeInserter{}
	w := newTestWriter(t, fake)
	evt := settledEvent()

	require.NoError(t, w.RecordSettlement(context.Background(), "evt-1", "payment_succeeded", evt))
	require.Len(t, fake.calls, 1)
	assert.Equal(t, "payment_settlements", fake.calls[0].table)

	saver, ok := fake.calls[0].rows[0].(cbigquery.ValueSaver)
	require.True(t, ok)
	values, insertID, err := saver.Save()
	require.NoError(t, err)
	assert.Equal(t, "evt-1", insertID)
	assert.Equal(t, evt.PaymentID.String(), values["payment_id"])
	assert.Equal(t, int64(5000), values["amount_cents"])
	assert.Equal(t, cbigquery.NullString{StringVal: "ch_123", Valid: true}, values["external_charge_id"])
	assert.Equal(t, cbigquery.NullString{}, values["failure_reason"])
}

func TestRecordSettlementRetriesTransientErrors(t *testing.T) {
	fake := &fakeInserter{responses: []error{
		&googleapi.Error{Code: http.StatusServiceUnavailable},
		status.Error(codes.Unavailable, "try again"),
		nil,
	}}
	w := newTestWriter(t, fake)

	require.NoError(t, w.RecordSettlement(context.Background(), "evt-2", "payment_failed", settledEvent()))
	assert.Len(t, fake.calls, 3)
}

func TestRecordSettlementStopsOnPermanentError(t *testing.T) {
	fake := &fakeInserter{responses: []error{&googleapi.Error{Code: http.StatusBadRequest}}}
	w := newTestWriter(t, fake)

	err := w.RecordSettlement(context.Background(), "evt-3", "payment_failed", settledEvent())
	require.Error(t, err)
	assert.Len(t, fake.calls, 1)
}

func TestRecordSettlementGivesUpAfterMaxAttempts(t *testing.T) {
	busy := &googleapi.Error{Code: http.StatusTooManyRequests}
	fake := &fakeInserter{responses: []error{busy, busy, busy, busy}}
	w := newTestWriter(t, fake)

	err := w.RecordSettlement(context.Background(), "evt-4", "payment_succeeded", settledEvent())
	require.Error(t, err)
	assert.Len(t, fake.calls, 3)
}

func TestTransientClassification(t *testing.T) {
	assert.False(t, transient(nil))
	assert.False(t, transient(errors.New("opaque")))
	assert.True(t, transient(cbigquery.PutMultiError{
		{RowIndex: 0, Errors: cbigquery.MultiError{&googleapi.Error{Code: http.StatusBadGateway}}},
	}))
	assert.False(t, transient(cbigquery.PutMultiError{
		{RowIndex: 0, Errors: cbigquery.MultiError{&googleapi.Error{Code: http.StatusBadRequest}}},
	}))
	assert.False(t, transient(cbigquery.PutMultiError{}))
	assert.True(t, transient(fmt.Errorf("insert: %w", status.Error(codes.DeadlineExceeded, "slow"))))
	assert.False(t, transient(status.Error(codes.InvalidArgument, "bad row")))
}
