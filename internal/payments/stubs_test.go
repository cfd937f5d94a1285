package payments

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lectern-edu/lectern-payments/internal/gateway"
	"github.com/lectern-edu/lectern-payments/pkg/db/models"
	"github.com/lectern-edu/lectern-payments/pkg/pagination"
)

type memoryRepo struct {
	mu        sync.Mutex
	rows      map[uuid.UUID]models.Payment
	createErr error
	// interfere runs before each CAS write, to simulate a concurrent writer.
	interfere func(row *models.Payment)
	casCalls  int
}

func newMemoryRepo(rows ...models.Payment) *memoryRepo {
	repo := &memoryRepo{rows: make(map[uuid.UUID]models.Payment)}
	for _, row := range rows {
		repo.rows[row.ID] = row
	}
	return repo
}

func (m *memoryRepo) WithTx(*gorm.DB) Repository { return m }

func (m *memoryRepo) Create(_ context.Context, payment *models.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.rows[payment.ID] = *payment
	return nil
}

func (m *memoryRepo) FindByID(_ context.Context, id uuid.UUID) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &row, nil
}

func (m *memoryRepo) FindByExternalIntentID(_ context.Context, intentID string) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.ExternalIntentID == intentID {
			found := row
			return &found, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memoryRepo) UpdateStatusCAS(_ context.Context, update StatusUpdate) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.casCalls++
	row, ok := m.rows[update.ID]
	if !ok {
		return false, nil
	}
	if m.interfere != nil {
		m.interfere(&row)
		m.rows[update.ID] = row
	}
	if row.Version != update.ExpectedVersion {
		return false, nil
	}
	row.Status = update.Status
	row.Version++
	row.UpdatedAt = update.UpdatedAt
	if update.ExternalChargeID != nil {
		row.ExternalChargeID = update.ExternalChargeID
	}
	if update.FailureReason != nil {
		row.FailureReason = update.FailureReason
	}
	m.rows[update.ID] = row
	return true, nil
}

func (m *memoryRepo) List(_ context.Context, query ListQuery) ([]models.Payment, *pagination.Cursor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Payment
	for _, row := range m.rows {
		if query.OwnerID != nil && row.OwnerID != *query.OwnerID {
			continue
		}
		out = append(out, row)
	}
	return out, nil, nil
}

func (m *memoryRepo) ListStale(context.Context, time.Time, int) ([]models.Payment, error) {
	return nil, nil
}

func (m *memoryRepo) get(id uuid.UUID) models.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[id]
}

type stubGateway struct {
	createFn     func(gateway.IntentRequest) (*gateway.CreatedIntent, error)
	fetchFn      func(string) (*gateway.Intent, error)
	cancelErr    error
	cancelled    []string
	createCalled int
}

func (s *stubGateway) CreateIntent(_ context.Context, req gateway.IntentRequest) (*gateway.CreatedIntent, error) {
	s.createCalled++
	if s.createFn != nil {
		return s.createFn(req)
	}
	return &gateway.CreatedIntent{IntentID: "pi_" + req.IdempotencyKey[:8], ClientSecret: "secret"}, nil
}

func (s *stubGateway) FetchIntent(_ context.Context, intentID string) (*gateway.Intent, error) {
	return s.fetchFn(intentID)
}

func (s *stubGateway) CancelIntent(_ context.Context, intentID string) error {
	s.cancelled = append(s.cancelled, intentID)
	return s.cancelErr
}

type stubDirectory struct {
	exists bool
	err    error
}

func (s stubDirectory) Exists(context.Context, uuid.UUID) (bool, error) {
	return s.exists, s.err
}

type immediateTx struct{}

func (immediateTx) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type recordingLinkage struct {
	mu       sync.Mutex
	confirms []LinkRequest
	cancels  []LinkRequest
	err      error
}

func (r *recordingLinkage) Confirm(_ context.Context, _ *gorm.DB, link LinkRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.confirms = append(r.confirms, link)
	return nil
}

func (r *recordingLinkage) Cancel(_ context.Context, _ *gorm.DB, link LinkRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.cancels = append(r.cancels, link)
	return nil
}

type recordingListener struct {
	settled []models.Payment
}

func (r *recordingListener) PaymentSettled(_ context.Context, _ *gorm.DB, payment *models.Payment) error {
	r.settled = append(r.settled, *payment)
	return nil
}
