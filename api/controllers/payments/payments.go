package payments

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lectern-edu/lectern-payments/api/middleware"
	"github.com/lectern-edu/lectern-payments/api/responses"
	"github.com/lectern-edu/lectern-payments/api/validators"
	"github.com/lectern-edu/lectern-payments/internal/payments"
	"github.com/lectern-edu/lectern-payments/pkg/db/models"
	"github.com/lectern-edu/lectern-payments/pkg/enums"
	pkgerrors "github.com/lectern-edu/lectern-payments/pkg/errors"
	"github.com/lectern-edu/lectern-payments/pkg/logger"
	"github.com/lectern-edu/lectern-payments/pkg/pagination"
)

type createPaymentRequest struct {
	Amount           string  `json:"amount" validate:"required,positive_decimal"`
	Currency         string  `json:"currency" validate:"required,len=3"`
	LinkedResourceID *string `json:"linked_resource_id,omitempty" validate:"omitempty,uuid"`
	Description      string  `json:"description" validate:"max=500"`
}

type paymentResponse struct {
	ID               uuid.UUID           `json:"id"`
	OwnerID          uuid.UUID           `json:"owner_id"`
	Status           enums.PaymentStatus `json:"status"`
	Amount           string              `json:"amount"`
	Currency         enums.Currency      `json:"currency"`
	LinkedResourceID *uuid.UUID          `json:"linked_resource_id,omitempty"`
	Description      string              `json:"description,omitempty"`
	ExternalIntentID string              `json:"external_intent_id"`
	ExternalChargeID *string             `json:"external_charge_id,omitempty"`
	FailureReason    *string             `json:"failure_reason,omitempty"`
	ClientSecret     string              `json:"client_secret,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
}

type listResponse struct {
	Items      []paymentResponse `json:"items"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

type successResponse struct {
	Succeeded bool `json:"succeeded"`
}

func toResponse(p *models.Payment) paymentResponse {
	return paymentResponse{
		ID:               p.ID,
		OwnerID:          p.OwnerID,
		Status:           p.Status,
		Amount:           payments.FormatAmount(p.AmountCents, p.Currency),
		Currency:         p.Currency,
		LinkedResourceID: p.LinkedResourceID,
		Description:      p.Description,
		ExternalIntentID: p.ExternalIntentID,
		ExternalChargeID: p.ExternalChargeID,
		FailureReason:    p.FailureReason,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
}

// Create opens a payment for the authenticated actor and returns the client secret once.
func Create(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var req createPaymentRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "amount must be a decimal string").WithDetails(map[string]string{"amount": "is invalid"}))
			return
		}
		currency, err := enums.ParseCurrency(req.Currency)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unsupported currency"))
			return
		}

		input := payments.CreatePaymentInput{
			OwnerID:     actor.ID,
			Amount:      amount,
			Currency:    currency,
			Description: req.Description,
		}
		if req.LinkedResourceID != nil {
			linked, err := validators.ParseUUID(*req.LinkedResourceID, "linked_resource_id")
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			input.LinkedResourceID = &linked
		}

		created, err := svc.CreatePayment(ctx, input)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		resp := toResponse(created.Payment)
		resp.ClientSecret = created.ClientSecret
		responses.WriteSuccessStatus(w, http.StatusCreated, resp)
	}
}

// List returns the caller's payments newest first. Admins may filter by owner_id.
func List(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		query := validators.QueryOf(r)
		limit, err := query.Int("limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		ownerID, err := query.UUID("owner_id")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		filter := payments.ListFilter{
			OwnerID: ownerID,
			Limit:   limit,
			Cursor:  query.String("cursor"),
		}
		if raw := query.String("status"); raw != "" {
			status, err := enums.ParsePaymentStatus(raw)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter"))
				return
			}
			filter.Status = &status
		}

		result, err := svc.ListPayments(ctx, actor, filter)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		resp := listResponse{Items: make([]paymentResponse, 0, len(result.Items)), NextCursor: result.NextCursor}
		for i := range result.Items {
			resp.Items = append(resp.Items, toResponse(&result.Items[i]))
		}
		responses.WriteSuccess(w, resp)
	}
}

func Get(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actor, id, err := actorAndPaymentID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		payment, err := svc.GetPayment(ctx, id, actor)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, toResponse(payment))
	}
}

// Success reports whether the payment has settled successfully.
func Success(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actor, id, err := actorAndPaymentID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if _, err := svc.GetPayment(ctx, id, actor); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		ok, err := svc.IsSuccessful(ctx, id)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, successResponse{Succeeded: ok})
	}
}

// Sync re-reads the gateway intent and applies whatever status it implies.
func Sync(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actor, id, err := actorAndPaymentID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if logg != nil {
			ctx = logg.WithPaymentID(ctx, id.String())
		}
		payment, err := svc.SyncForActor(ctx, id, actor)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, toResponse(payment))
	}
}

func actorFromRequest(r *http.Request) (payments.Actor, error) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok || !actor.Role.IsValid() {
		return payments.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor missing from context")
	}
	return payments.Actor{ID: actor.UserID, Role: actor.Role}, nil
}

func actorAndPaymentID(r *http.Request) (payments.Actor, uuid.UUID, error) {
	actor, err := actorFromRequest(r)
	if err != nil {
		return payments.Actor{}, uuid.Nil, err
	}
	id, err := validators.ParseUUID(chi.URLParam(r, "paymentId"), "paymentId")
	if err != nil {
		return payments.Actor{}, uuid.Nil, err
	}
	return actor, id, nil
}
