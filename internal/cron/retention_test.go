package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/lectern-edu/lectern-payments/pkg/logger"
)

type passthroughTx struct{}

func (passthroughTx) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type recordingPrune struct {
	cutoffs []time.Time
	rows    int64
	err     error
}

func (p *recordingPrune) prune(_ context.Context, _ *gorm.DB, cutoff time.Time) (int64, error) {
	p.cutoffs = append(p.cutoffs, cutoff)
	return p.rows, p.err
}

func (p *recordingPrune) DeletePublishedBefore(tx *gorm.DB, cutoff time.Time) (int64, error) {
	return p.prune(context.Background(), tx, cutoff)
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test"})
}

func TestRetentionJobComputesCutoff(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	rec := &recordingPrune{rows: 3}
	job, err := NewRetentionJob(RetentionJobParams{
		Name:      "processed-event-retention",
		Logger:    testLogger(),
		DB:        passthroughTx{},
		Prune:     rec.prune,
		Retention: DefaultLedgerRetention,
	})
	require.NoError(t, err)
	job.(*retentionJob).now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))
	require.Len(t, rec.cutoffs, 1)
	assert.Equal(t, now.Add(-DefaultLedgerRetention), rec.cutoffs[0])
	assert.Equal(t, "processed-event-retention", job.Name())
}

func TestOutboxRetentionJobDelegatesToRepository(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	rec := &recordingPrune{rows: 7}
	job, err := NewOutboxRetentionJob(testLogger(), passthroughTx{}, rec, 48*time.Hour)
	require.NoError(t, err)
	job.(*retentionJob).now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))
	require.Len(t, rec.cutoffs, 1)
	assert.Equal(t, now.Add(-48*time.Hour), rec.cutoffs[0])
	assert.Equal(t, "outbox-retention", job.Name())
}

func TestRetentionJobWrapsPruneError(t *testing.T) {
	boom := errors.New("db down")
	rec := &recordingPrune{err: boom}
	job, err := NewRetentionJob(RetentionJobParams{
		Name: "x", Logger: testLogger(), DB: passthroughTx{}, Prune: rec.prune, Retention: time.Hour,
	})
	require.NoError(t, err)

	err = job.Run(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "x:")
}

func TestNewRetentionJobValidatesParams(t *testing.T) {
	rec := &recordingPrune{}
	valid := RetentionJobParams{Name: "x", Logger: testLogger(), DB: passthroughTx{}, Prune: rec.prune, Retention: time.Hour}

	cases := map[string]func(p *RetentionJobParams){
		"name":      func(p *RetentionJobParams) { p.Name = "" },
		"logger":    func(p *RetentionJobParams) { p.Logger = nil },
		"db":        func(p *RetentionJobParams) { p.DB = nil },
		"prune":     func(p *RetentionJobParams) { p.Prune = nil },
		"retention": func(p *RetentionJobParams) { p.Retention = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			params := valid
			mutate(&params)
			_, err := NewRetentionJob(params)
			assert.Error(t, err)
		})
	}

	_, err := NewOutboxRetentionJob(testLogger(), passthroughTx{}, nil, time.Hour)
	assert.Error(t, err)
}
