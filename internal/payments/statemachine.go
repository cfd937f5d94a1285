package payments

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lectern-edu/lectern-payments/internal/gateway"
	"github.com/lectern-edu/lectern-payments/pkg/db/models"
	"github.com/lectern-edu/lectern-payments/pkg/enums"
	pkgerrors "github.com/lectern-edu/lectern-payments/pkg/errors"
	"github.com/lectern-edu/lectern-payments/pkg/logger"
)

// MaxTransitionAttempts bounds optimistic retries before giving up with CONCURRENT_UPDATE.
const MaxTransitionAttempts = 3

var allowedTransitions = map[enums.PaymentStatus][]enums.PaymentStatus{
	enums.PaymentStatusPending: {
		enums.PaymentStatusProcessing,
		enums.PaymentStatusSucceeded,
		enums.PaymentStatusFailed,
	},
	enums.PaymentStatusProcessing: {
		enums.PaymentStatusSucceeded,
		enums.PaymentStatusFailed,
	},
}

// Decision is the verdict on a requested transition.
type Decision struct {
	Apply  bool
	Reason string
}

// Decide reports whether current may move to next. A rejected decision is
// never an error; callers log it and move on.
func Decide(current, next enums.PaymentStatus) Decision {
	if !next.IsValid() {
		return Decision{Reason: "unknown target status"}
	}
	if current == next {
		return Decision{Reason: "already in target status"}
	}
	if current.IsTerminal() {
		return Decision{Reason: "payment already " + string(current)}
	}
	for _, allowed := range allowedTransitions[current] {
		if allowed == next {
			return Decision{Apply: true}
		}
	}
	return Decision{Reason: "transition " + string(current) + " -> " + string(next) + " not allowed"}
}

// TransitionRequest is a requested move to Target with the details a terminal status needs.
type TransitionRequest struct {
	Target        enums.PaymentStatus
	ChargeID      string
	FailureReason string
}

// TransitionResult describes what Apply did.
type TransitionResult struct {
	Payment  *models.Payment
	From     enums.PaymentStatus
	Applied  bool
	Decision Decision
}

// Lookup loads the payment a transition targets.
type Lookup func(ctx context.Context, repo Repository) (*models.Payment, error)

// ByID looks a payment up by its local id.
func ByID(id uuid.UUID) Lookup {
	return func(ctx context.Context, repo Repository) (*models.Payment, error) {
		return repo.FindByID(ctx, id)
	}
}

// ByExternalIntentID looks a payment up by its gateway intent id.
func ByExternalIntentID(intentID string) Lookup {
	return func(ctx context.Context, repo Repository) (*models.Payment, error) {
		return repo.FindByExternalIntentID(ctx, intentID)
	}
}

// LinkRequest identifies the resource a payment was made for.
type LinkRequest struct {
	PaymentID  uuid.UUID
	ResourceID uuid.UUID
	OwnerID    uuid.UUID
	Reason     string
}

// EnrollmentLinkage confirms or releases the resource bought by a payment.
// Implementations must be idempotent and must write through tx.
type EnrollmentLinkage interface {
	Confirm(ctx context.Context, tx *gorm.DB, link LinkRequest) error
	Cancel(ctx context.Context, tx *gorm.DB, link LinkRequest) error
}

// SettlementListener observes payments reaching a terminal status, inside the same transaction.
type SettlementListener interface {
	PaymentSettled(ctx context.Context, tx *gorm.DB, payment *models.Payment) error
}

// Transitioner applies status changes with optimistic version checks.
type Transitioner struct {
	repo        Repository
	linkage     EnrollmentLinkage
	listener    SettlementListener
	logg        *logger.Logger
	now         func() time.Time
	maxAttempts int
}

// NewTransitioner wires the state machine. linkage and listener may be nil.
func NewTransitioner(repo Repository, linkage EnrollmentLinkage, listener SettlementListener, logg *logger.Logger) (*Transitioner, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payments repository required")
	}
	return &Transitioner{
		repo:        repo,
		linkage:     linkage,
		listener:    listener,
		logg:        logg,
		now:         time.Now,
		maxAttempts: MaxTransitionAttempts,
	}, nil
}

// Apply reads the payment through lookup, decides, and writes with a version
// check. A lost race rereads and decides again. Settlement side effects run
// through tx only when this call applied a terminal transition.
func (t *Transitioner) Apply(ctx context.Context, tx *gorm.DB, lookup Lookup, req TransitionRequest) (*TransitionResult, error) {
	if lookup == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment lookup required")
	}
	repo := t.repo.WithTx(tx)

	for attempt := 1; attempt <= t.maxAttempts; attempt++ {
		payment, err := lookup(ctx, repo)
		if err != nil {
			return nil, err
		}

		decision := Decide(payment.Status, req.Target)
		if !decision.Apply {
			t.logRejected(ctx, payment, req.Target, decision)
			return &TransitionResult{Payment: payment, From: payment.Status, Decision: decision}, nil
		}

		update := t.buildUpdate(payment, req)
		ok, err := repo.UpdateStatusCAS(ctx, update)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment status")
		}
		if !ok {
			if t.logg != nil {
				t.logg.Debug(t.logg.WithFields(ctx, map[string]any{
					"payment_id": payment.ID.String(),
					"version":    payment.Version,
					"attempt":    attempt,
				}), "payment version moved, retrying transition")
			}
			continue
		}

		from := payment.Status
		applied := *payment
		applied.Status = update.Status
		applied.Version = update.ExpectedVersion + 1
		applied.UpdatedAt = update.UpdatedAt
		if update.ExternalChargeID != nil {
			applied.ExternalChargeID = update.ExternalChargeID
		}
		if update.FailureReason != nil {
			applied.FailureReason = update.FailureReason
		}

		if err := t.settle(ctx, tx, &applied); err != nil {
			return nil, err
		}
		if t.logg != nil {
			t.logg.Info(t.logg.WithFields(ctx, map[string]any{
				"payment_id": applied.ID.String(),
				"from":       from,
				"to":         applied.Status,
				"version":    applied.Version,
			}), "payment status transitioned")
		}
		return &TransitionResult{Payment: &applied, From: from, Applied: true, Decision: decision}, nil
	}

	return nil, pkgerrors.New(pkgerrors.CodeConcurrentUpdate, "payment changed concurrently")
}

func (t *Transitioner) buildUpdate(payment *models.Payment, req TransitionRequest) StatusUpdate {
	update := StatusUpdate{
		ID:              payment.ID,
		ExpectedVersion: payment.Version,
		Status:          req.Target,
		UpdatedAt:       t.now().UTC(),
	}
	switch req.Target {
	case enums.PaymentStatusSucceeded:
		if charge := strings.TrimSpace(req.ChargeID); charge != "" {
			update.ExternalChargeID = &charge
		}
	case enums.PaymentStatusFailed:
		reason := strings.TrimSpace(req.FailureReason)
		if reason == "" {
			reason = gateway.DefaultFailureReason
		}
		update.FailureReason = &reason
	}
	return update
}

func (t *Transitioner) settle(ctx context.Context, tx *gorm.DB, payment *models.Payment) error {
	if !payment.Status.IsTerminal() {
		return nil
	}
	if t.linkage != nil && payment.LinkedResourceID != nil {
		link := LinkRequest{
			PaymentID:  payment.ID,
			ResourceID: *payment.LinkedResourceID,
			OwnerID:    payment.OwnerID,
		}
		var err error
		if payment.Status == enums.PaymentStatusSucceeded {
			err = t.linkage.Confirm(ctx, tx, link)
		} else {
			link.Reason = derefString(payment.FailureReason)
			err = t.linkage.Cancel(ctx, tx, link)
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "enrollment linkage")
		}
	}
	if t.listener != nil {
		if err := t.listener.PaymentSettled(ctx, tx, payment); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment settlement notification")
		}
	}
	return nil
}

func (t *Transitioner) logRejected(ctx context.Context, payment *models.Payment, target enums.PaymentStatus, decision Decision) {
	if t.logg == nil {
		return
	}
	logCtx := t.logg.WithFields(ctx, map[string]any{
		"payment_id": payment.ID.String(),
		"from":       payment.Status,
		"to":         target,
		"reason":     decision.Reason,
	})
	if payment.Status == target {
		t.logg.Debug(logCtx, "payment transition skipped")
		return
	}
	t.logg.Warn(logCtx, "payment transition rejected")
}
