// Package analytics streams settled payments into BigQuery for reporting.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/lectern-edu/lectern-payments/pkg/outbox/payloads"
)

const (
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 250 * time.Millisecond
	defaultMaximumBackoff = 2 * time.Second
)

// RetryPolicy controls how many times BigQuery inserts are retried.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaximumBackoff time.Duration
}

type tableInserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

// SettlementWriter inserts settlement rows with bounded retries.
type SettlementWriter struct {
	client tableInserter
	table  string
	retry  RetryPolicy
}

// NewSettlementWriter builds a writer for the given table.
func NewSettlementWriter(client tableInserter, table string, retry RetryPolicy) (*SettlementWriter, error) {
	if client == nil {
		return nil, errors.New("bigquery client required")
	}
	table = strings.TrimSpace(table)
	if table == "" {
		return nil, errors.New("settlements table is required")
	}

	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = defaultMaxAttempts
	}
	if retry.InitialBackoff <= 0 {
		retry.InitialBackoff = defaultInitialBackoff
	}
	if retry.MaximumBackoff < retry.InitialBackoff {
		retry.MaximumBackoff = max(defaultMaximumBackoff, retry.InitialBackoff)
	}

	return &SettlementWriter{client: client, table: table, retry: retry}, nil
}

// RecordSettlement writes one row for a payment_succeeded or payment_failed event.
func (w *SettlementWriter) RecordSettlement(ctx context.Context, eventID, eventType string, evt payloads.PaymentSettledEvent) error {
	row := NewSettlementRow(eventID, eventType, evt)
	return w.insertWithRetry(ctx, []any{&row})
}

func (w *SettlementWriter) insertWithRetry(ctx context.Context, rows []any) error {
	var err error
	wait := w.retry.InitialBackoff
	for attempt := 1; attempt <= w.retry.MaxAttempts; attempt++ {
		if attempt > 1 {
			if sleepErr := sleep(ctx, wait); sleepErr != nil {
				return sleepErr
			}
			wait = min(wait*2, w.retry.MaximumBackoff)
		}
		if err = w.client.InsertRows(ctx, w.table, rows); err == nil {
			return nil
		}
		if !transient(err) {
			break
		}
	}
	return fmt.Errorf("insert %s rows: %w", w.table, err)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var (
	transientHTTP = map[int]bool{
		http.StatusTooManyRequests:     true,
		http.StatusRequestTimeout:      true,
		http.StatusInternalServerError: true,
		http.StatusBadGateway:          true,
		http.StatusServiceUnavailable:  true,
		http.StatusGatewayTimeout:      true,
	}
	transientGRPC = map[codes.Code]bool{
		codes.Aborted:           true,
		codes.DeadlineExceeded:  true,
		codes.Internal:          true,
		codes.ResourceExhausted: true,
		codes.Unavailable:       true,
	}
)

// transient reports whether a BigQuery insert failure is worth retrying.
// Multi-row failures are retried only when every row failed transiently.
func transient(err error) bool {
	if err == nil {
		return false
	}
	var rowErrs cbigquery.PutMultiError
	if errors.As(err, &rowErrs) {
		return allTransient(rowErrs, func(r cbigquery.RowInsertionError) error { return r.Errors })
	}
	var multi cbigquery.MultiError
	if errors.As(err, &multi) {
		return allTransient(multi, func(e error) error { return e })
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return transientHTTP[apiErr.Code]
	}
	if st, ok := status.FromError(err); ok && st != nil {
		return transientGRPC[st.Code()]
	}
	return false
}

func allTransient[T any](items []T, cause func(T) error) bool {
	if len(items) == 0 {
		return false
	}
	for _, item := range items {
		if !transient(cause(item)) {
			return false
		}
	}
	return true
}
