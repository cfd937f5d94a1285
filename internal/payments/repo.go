package payments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lectern-edu/lectern-payments/internal/repo"
	"github.com/lectern-edu/lectern-payments/pkg/db/models"
	"github.com/lectern-edu/lectern-payments/pkg/enums"
	"github.com/lectern-edu/lectern-payments/pkg/pagination"
)

// Repository defines persistence operations for payments.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, payment *models.Payment) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	FindByExternalIntentID(ctx context.Context, intentID string) (*models.Payment, error)
	UpdateStatusCAS(ctx context.Context, update StatusUpdate) (bool, error)
	List(ctx context.Context, query ListQuery) ([]models.Payment, *pagination.Cursor, error)
	ListStale(ctx context.Context, updatedBefore time.Time, limit int) ([]models.Payment, error)
}

// StatusUpdate is a versioned status write. It only lands if the row still has ExpectedVersion.
type StatusUpdate struct {
	ID               uuid.UUID
	ExpectedVersion  int64
	Status           enums.PaymentStatus
	ExternalChargeID *string
	FailureReason    *string
	UpdatedAt        time.Time
}

// ListQuery filters an owner-scoped listing. A nil OwnerID lists every owner.
type ListQuery struct {
	OwnerID *uuid.UUID
	Status  *enums.PaymentStatus
	Limit   int
	Cursor  *pagination.Cursor
}

type repository struct {
	repo.Base
}

// NewRepository returns a payments repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: repo.NewBase(tx)}
}

func (r *repository) Create(ctx context.Context, payment *models.Payment) error {
	return r.DB(ctx).Create(payment).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	if err := r.DB(ctx).Where("id = ?", id).First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) FindByExternalIntentID(ctx context.Context, intentID string) (*models.Payment, error) {
	var payment models.Payment
	if err := r.DB(ctx).Where("external_intent_id = ?", intentID).First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) UpdateStatusCAS(ctx context.Context, update StatusUpdate) (bool, error) {
	updates := map[string]any{
		"status":     update.Status,
		"version":    gorm.Expr("version + 1"),
		"updated_at": update.UpdatedAt,
	}
	if update.ExternalChargeID != nil {
		updates["external_charge_id"] = *update.ExternalChargeID
	}
	if update.FailureReason != nil {
		updates["failure_reason"] = *update.FailureReason
	}

	result := r.DB(ctx).
		Model(&models.Payment{}).
		Where("id = ? AND version = ?", update.ID, update.ExpectedVersion).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repository) List(ctx context.Context, query ListQuery) ([]models.Payment, *pagination.Cursor, error) {
	q := r.DB(ctx).Model(&models.Payment{})
	if query.OwnerID != nil {
		q = q.Where("owner_id = ?", *query.OwnerID)
	}
	if query.Status != nil {
		q = q.Where("status = ?", *query.Status)
	}
	if query.Cursor != nil {
		clause, args := query.Cursor.After()
		q = q.Where(clause, args...)
	}

	var rows []models.Payment
	if err := q.Order("created_at DESC, id DESC").Limit(pagination.LimitWithBuffer(query.Limit)).Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	page, next := pagination.Page(rows, query.Limit, func(p models.Payment) pagination.Cursor {
		return pagination.Cursor{CreatedAt: p.CreatedAt, ID: p.ID}
	})
	return page, next, nil
}

func (r *repository) ListStale(ctx context.Context, updatedBefore time.Time, limit int) ([]models.Payment, error) {
	if limit <= 0 {
		limit = pagination.MaxLimit
	}
	var rows []models.Payment
	if err := r.DB(ctx).
		Where("status IN ?", []enums.PaymentStatus{enums.PaymentStatusPending, enums.PaymentStatusProcessing}).
		Where("updated_at < ?", updatedBefore).
		Order("updated_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
