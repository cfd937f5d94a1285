package payments

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/lectern-edu/lectern-payments/internal/gateway"
	"github.com/lectern-edu/lectern-payments/pkg/db/models"
	"github.com/lectern-edu/lectern-payments/pkg/enums"
	pkgerrors "github.com/lectern-edu/lectern-payments/pkg/errors"
	"github.com/lectern-edu/lectern-payments/pkg/logger"
	"github.com/lectern-edu/lectern-payments/pkg/pagination"
)

const (
	metadataPaymentID        = "payment_id"
	metadataOwnerID          = "owner_id"
	metadataLinkedResourceID = "linked_resource_id"

	maxDescriptionLength = 500
)

// Gateway is the subset of the payment gateway the service calls.
type Gateway interface {
	CreateIntent(ctx context.Context, req gateway.IntentRequest) (*gateway.CreatedIntent, error)
	FetchIntent(ctx context.Context, intentID string) (*gateway.Intent, error)
	CancelIntent(ctx context.Context, intentID string) error
}

// ActorDirectory answers whether an owner id refers to a real platform actor.
type ActorDirectory interface {
	Exists(ctx context.Context, ownerID uuid.UUID) (bool, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Actor is the authenticated caller.
type Actor struct {
	ID   uuid.UUID
	Role enums.ActorRole
}

func (a Actor) isAdmin() bool {
	return a.Role == enums.ActorRoleAdmin
}

// CreatePaymentInput is a request to open a new payment.
type CreatePaymentInput struct {
	OwnerID          uuid.UUID
	Amount           decimal.Decimal
	Currency         enums.Currency
	LinkedResourceID *uuid.UUID
	Description      string
}

// CreatedPayment pairs the stored payment with the one-time client secret.
type CreatedPayment struct {
	Payment      *models.Payment
	ClientSecret string
}

// ListFilter narrows ListPayments. OwnerID is honoured for admins only.
type ListFilter struct {
	OwnerID *uuid.UUID
	Status  *enums.PaymentStatus
	Limit   int
	Cursor  string
}

// ListResult is one page of payments.
type ListResult struct {
	Items      []models.Payment
	NextCursor string
}

// Service exposes payment lifecycle operations.
type Service interface {
	CreatePayment(ctx context.Context, input CreatePaymentInput) (*CreatedPayment, error)
	GetPayment(ctx context.Context, id uuid.UUID, actor Actor) (*models.Payment, error)
	IsSuccessful(ctx context.Context, id uuid.UUID) (bool, error)
	ListPayments(ctx context.Context, actor Actor, filter ListFilter) (*ListResult, error)
	SyncFromGateway(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	SyncForActor(ctx context.Context, id uuid.UUID, actor Actor) (*models.Payment, error)
	ListStale(ctx context.Context, updatedBefore time.Time, limit int) ([]models.Payment, error)
}

// ServiceParams wires the payment service.
type ServiceParams struct {
	Repo              Repository
	Gateway           Gateway
	Transitioner      *Transitioner
	Actors            ActorDirectory
	TransactionRunner txRunner
	Logger            *logger.Logger
}

type service struct {
	repo         Repository
	gateway      Gateway
	transitioner *Transitioner
	actors       ActorDirectory
	txRunner     txRunner
	logg         *logger.Logger
	now          func() time.Time
	newID        func() uuid.UUID
}

// NewService validates dependencies and returns a payment service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payments repository required")
	}
	if params.Gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment gateway required")
	}
	if params.Transitioner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment transitioner required")
	}
	if params.Actors == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "actor directory required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	return &service{
		repo:         params.Repo,
		gateway:      params.Gateway,
		transitioner: params.Transitioner,
		actors:       params.Actors,
		txRunner:     params.TransactionRunner,
		logg:         params.Logger,
		now:          time.Now,
		newID:        uuid.New,
	}, nil
}

func (s *service) CreatePayment(ctx context.Context, input CreatePaymentInput) (*CreatedPayment, error) {
	if input.OwnerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "owner id is required")
	}
	currency, err := enums.ParseCurrency(string(input.Currency))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unsupported currency")
	}
	amountMinor, err := ToMinorUnits(input.Amount, currency)
	if err != nil {
		return nil, err
	}
	description := strings.TrimSpace(input.Description)
	if len(description) > maxDescriptionLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "description too long")
	}
	if input.LinkedResourceID != nil && *input.LinkedResourceID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "linked resource id is invalid")
	}

	exists, err := s.actors.Exists(ctx, input.OwnerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve owner")
	}
	if !exists {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "owner not found")
	}

	paymentID := s.newID()
	metadata := map[string]string{
		metadataPaymentID: paymentID.String(),
		metadataOwnerID:   input.OwnerID.String(),
	}
	if input.LinkedResourceID != nil {
		metadata[metadataLinkedResourceID] = input.LinkedResourceID.String()
	}

	created, err := s.gateway.CreateIntent(ctx, gateway.IntentRequest{
		AmountMinor:    amountMinor,
		Currency:       currency,
		Description:    description,
		Metadata:       metadata,
		IdempotencyKey: paymentID.String(),
	})
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	payment := &models.Payment{
		ID:               paymentID,
		OwnerID:          input.OwnerID,
		LinkedResourceID: input.LinkedResourceID,
		AmountCents:      amountMinor,
		Currency:         currency,
		Method:           enums.PaymentMethodCardGateway,
		Status:           enums.PaymentStatusPending,
		Description:      description,
		ExternalIntentID: created.IntentID,
		Version:          0,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.repo.Create(ctx, payment); err != nil {
		s.rollbackIntent(ctx, paymentID, created.IntentID)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist payment")
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"payment_id": paymentID.String(),
			"intent_id":  created.IntentID,
			"amount":     amountMinor,
			"currency":   currency,
		}), "payment created")
	}

	return &CreatedPayment{Payment: payment, ClientSecret: created.ClientSecret}, nil
}

// rollbackIntent cancels an intent whose local record could not be written.
// It must outlive a canceled request context.
func (s *service) rollbackIntent(ctx context.Context, paymentID uuid.UUID, intentID string) {
	cancelCtx := context.WithoutCancel(ctx)
	if err := s.gateway.CancelIntent(cancelCtx, intentID); err != nil {
		if s.logg != nil {
			s.logg.Error(s.logg.WithFields(ctx, map[string]any{
				"payment_id": paymentID.String(),
				"intent_id":  intentID,
			}), "cancel orphaned intent", err)
		}
		return
	}
	if s.logg != nil {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"payment_id": paymentID.String(),
			"intent_id":  intentID,
		}), "orphaned intent canceled after persist failure")
	}
}

func (s *service) GetPayment(ctx context.Context, id uuid.UUID, actor Actor) (*models.Payment, error) {
	payment, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if payment.OwnerID != actor.ID && !actor.isAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "payment belongs to another owner")
	}
	return payment, nil
}

func (s *service) IsSuccessful(ctx context.Context, id uuid.UUID) (bool, error) {
	payment, err := s.load(ctx, id)
	if err != nil {
		return false, err
	}
	return payment.Status == enums.PaymentStatusSucceeded, nil
}

func (s *service) ListPayments(ctx context.Context, actor Actor, filter ListFilter) (*ListResult, error) {
	if actor.ID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor required")
	}

	query := ListQuery{Limit: filter.Limit, Status: filter.Status}
	if actor.isAdmin() {
		query.OwnerID = filter.OwnerID
	} else {
		if filter.OwnerID != nil && *filter.OwnerID != actor.ID {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "cannot list another owner's payments")
		}
		owner := actor.ID
		query.OwnerID = &owner
	}
	if filter.Status != nil && !filter.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter")
	}
	if filter.Cursor != "" {
		cursor, err := pagination.ParseCursor(filter.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payments")
	}
	result := &ListResult{Items: rows}
	if next != nil {
		result.NextCursor = pagination.EncodeCursor(*next)
	}
	return result, nil
}

func (s *service) SyncForActor(ctx context.Context, id uuid.UUID, actor Actor) (*models.Payment, error) {
	if _, err := s.GetPayment(ctx, id, actor); err != nil {
		return nil, err
	}
	return s.SyncFromGateway(ctx, id)
}

// SyncFromGateway fetches the intent and applies whatever status it implies.
// The fetch happens outside the transaction.
func (s *service) SyncFromGateway(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	payment, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if payment.Status.IsTerminal() {
		return payment, nil
	}

	intent, err := s.gateway.FetchIntent(ctx, payment.ExternalIntentID)
	if err != nil {
		return nil, err
	}
	target, ok := intent.ImpliedStatus()
	if !ok {
		return payment, nil
	}

	var result *TransitionResult
	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		var applyErr error
		result, applyErr = s.transitioner.Apply(ctx, tx, ByID(id), TransitionRequest{
			Target:        target,
			ChargeID:      intent.LatestChargeID,
			FailureReason: intent.FailureReason(),
		})
		return applyErr
	})
	if err != nil {
		return nil, err
	}
	return result.Payment, nil
}

func (s *service) ListStale(ctx context.Context, updatedBefore time.Time, limit int) ([]models.Payment, error) {
	rows, err := s.repo.ListStale(ctx, updatedBefore, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stale payments")
	}
	return rows, nil
}

func (s *service) load(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id is required")
	}
	payment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}
	return payment, nil
}
