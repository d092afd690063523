package debts

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/voltgrid-erp/voltgrid/internal/shared"
)

var (
	// ErrDebtNotFound indicates the referenced debt does not exist.
	ErrDebtNotFound = fmt.Errorf("debt %w", shared.ErrNotFound)
	// ErrDebtClosed indicates the debt is in a terminal state and accepts no payments.
	ErrDebtClosed = fmt.Errorf("%w: debt already settled or written off", shared.ErrStateConflict)
)

// Repository defines data access for debt records.
type Repository interface {
	CreateDebt(ctx context.Context, input CreateDebtInput) (*DebtRecord, error)
	GetDebt(ctx context.Context, id int64) (*DebtRecord, error)
	ListDebts(ctx context.Context, req ListDebtsRequest) ([]DebtRecord, error)
	CountDebts(ctx context.Context, req ListDebtsRequest) (int, error)
	ListOverdue(ctx context.Context, asOf time.Time) ([]DebtRecord, error)
	CustomerOutstanding(ctx context.Context, customerID int64) (decimal.Decimal, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes transactional debt mutations.
type TxRepository interface {
	GetDebtForUpdate(ctx context.Context, id int64) (*DebtRecord, error)
	UpdateBalances(ctx context.Context, id int64, paid, remaining decimal.Decimal, status DebtStatus, paidAt time.Time) error
	AddCharge(ctx context.Context, id int64, original, remaining decimal.Decimal) error
	UpdateStage(ctx context.Context, id int64, stage CollectionStage, collectorID *int64, reminderAt time.Time) error
	UpdateStatus(ctx context.Context, id int64, status DebtStatus, stage CollectionStage) error
}

// ReminderDispatcher enqueues reminder notifications after stage escalation.
// Delivery itself happens in the background worker.
type ReminderDispatcher interface {
	EnqueueReminder(ctx context.Context, debt DebtRecord) error
}

// Service owns the debt ledger: how much a customer still owes on one
// obligation and where that obligation sits in the collection pipeline.
type Service struct {
	repo      Repository
	audit     shared.Recorder
	reminders ReminderDispatcher
	now       func() time.Time
}

// NewService builds a Service instance.
func NewService(repo Repository, audit shared.Recorder, reminders ReminderDispatcher) *Service {
	return &Service{repo: repo, audit: audit, reminders: reminders, now: time.Now}
}

// CreateDebt opens a new obligation with the full amount outstanding.
func (s *Service) CreateDebt(ctx context.Context, input CreateDebtInput) (*DebtRecord, error) {
	if input.CustomerID <= 0 {
		return nil, fmt.Errorf("%w: customer is required", shared.ErrValidation)
	}
	if !input.DebtType.Valid() {
		return nil, fmt.Errorf("%w: unknown debt type %q", shared.ErrValidation, input.DebtType)
	}
	if !input.OriginalAmount.IsPositive() {
		return nil, fmt.Errorf("%w: original amount must be positive", shared.ErrValidation)
	}
	if input.DueDate.IsZero() {
		return nil, fmt.Errorf("%w: due date is required", shared.ErrValidation)
	}
	return s.repo.CreateDebt(ctx, input)
}

// RecordPayment applies a payment against the remaining balance. Amounts in
// excess of the balance are capped; overpayment is not tracked as credit.
func (s *Service) RecordPayment(ctx context.Context, debtID int64, amount decimal.Decimal, paymentDate time.Time) (PaymentResult, error) {
	if !amount.IsPositive() {
		return PaymentResult{}, fmt.Errorf("%w: payment amount must be positive", shared.ErrValidation)
	}
	if paymentDate.IsZero() {
		paymentDate = s.now()
	}

	var result PaymentResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		debt, err := tx.GetDebtForUpdate(ctx, debtID)
		if err != nil {
			return err
		}
		if debt.Status.Terminal() {
			return ErrDebtClosed
		}

		applied := decimal.Min(amount, debt.RemainingAmount)
		remaining := debt.RemainingAmount.Sub(applied)
		paid := debt.PaidAmount.Add(applied)

		status := StatusPartiallyPaid
		if remaining.IsZero() {
			status = StatusPaid
		}

		if err := tx.UpdateBalances(ctx, debtID, paid, remaining, status, paymentDate); err != nil {
			return err
		}
		result = PaymentResult{RemainingAmount: remaining, Status: status}
		return nil
	})
	if err != nil {
		return PaymentResult{}, err
	}
	return result, nil
}

// AbsorbCharge folds an external charge into the debt, raising both the
// original and remaining balances. Closed debts accept no further charges.
func (s *Service) AbsorbCharge(ctx context.Context, debtID int64, amount decimal.Decimal) (*DebtRecord, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: charge amount must be positive", shared.ErrValidation)
	}
	var updated DebtRecord
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		debt, err := tx.GetDebtForUpdate(ctx, debtID)
		if err != nil {
			return err
		}
		if debt.Status.Terminal() {
			return ErrDebtClosed
		}
		original := debt.OriginalAmount.Add(amount)
		remaining := debt.RemainingAmount.Add(amount)
		if err := tx.AddCharge(ctx, debtID, original, remaining); err != nil {
			return err
		}
		updated = *debt
		updated.OriginalAmount = original
		updated.RemainingAmount = remaining
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Escalate moves the debt to the given collection stage. Any stage move is
// permitted; the transition bumps the reminder counter and reminder timestamp.
func (s *Service) Escalate(ctx context.Context, input EscalateInput) error {
	if !input.Stage.Valid() {
		return fmt.Errorf("%w: unknown collection stage %q", shared.ErrValidation, input.Stage)
	}

	var escalated DebtRecord
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		debt, err := tx.GetDebtForUpdate(ctx, input.DebtID)
		if err != nil {
			return err
		}
		if err := tx.UpdateStage(ctx, input.DebtID, input.Stage, input.CollectorID, s.now()); err != nil {
			return err
		}
		escalated = *debt
		escalated.CollectionStage = input.Stage
		return nil
	})
	if err != nil {
		return err
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   "debt.escalate",
			Entity:   "debt",
			EntityID: strconv.FormatInt(input.DebtID, 10),
			Meta:     map[string]any{"stage": string(input.Stage), "notes": input.Notes},
		})
	}
	// The stage move is already committed; a reminder that fails to enqueue
	// must not fail the escalation itself.
	if s.reminders != nil {
		if err := s.reminders.EnqueueReminder(ctx, escalated); err != nil {
			slog.Default().Warn("enqueue reminder",
				slog.Any("error", err),
				slog.Int64("debt_id", input.DebtID),
			)
		}
	}
	return nil
}

// WriteOff administratively closes a debt. Terminal: no further payments.
func (s *Service) WriteOff(ctx context.Context, debtID int64, reason string, actorID int64) error {
	if reason == "" {
		return fmt.Errorf("%w: write-off reason is required", shared.ErrValidation)
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		debt, err := tx.GetDebtForUpdate(ctx, debtID)
		if err != nil {
			return err
		}
		if debt.Status.Terminal() {
			return ErrDebtClosed
		}
		return tx.UpdateStatus(ctx, debtID, StatusWrittenOff, StageWrittenOff)
	})
	if err != nil {
		return err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   "debt.write_off",
			Entity:   "debt",
			EntityID: strconv.FormatInt(debtID, 10),
			Meta:     map[string]any{"reason": reason},
		})
	}
	return nil
}

// MarkDisputed flags an open debt as disputed. No amounts change.
func (s *Service) MarkDisputed(ctx context.Context, debtID int64) error {
	return s.moveStatus(ctx, debtID, StatusDisputed)
}

// SendToCollection flags an open debt as under active collection.
func (s *Service) SendToCollection(ctx context.Context, debtID int64) error {
	return s.moveStatus(ctx, debtID, StatusInCollection)
}

func (s *Service) moveStatus(ctx context.Context, debtID int64, status DebtStatus) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		debt, err := tx.GetDebtForUpdate(ctx, debtID)
		if err != nil {
			return err
		}
		if debt.Status.Terminal() {
			return ErrDebtClosed
		}
		return tx.UpdateStatus(ctx, debtID, status, debt.CollectionStage)
	})
}

// GetDebt returns one debt record.
func (s *Service) GetDebt(ctx context.Context, id int64) (*DebtRecord, error) {
	return s.repo.GetDebt(ctx, id)
}

// ListDebts returns debts matching the filter plus the unpaginated total.
func (s *Service) ListDebts(ctx context.Context, req ListDebtsRequest) ([]DebtRecord, int, error) {
	if req.Limit <= 0 || req.Limit > 500 {
		req.Limit = 100
	}
	list, err := s.repo.ListDebts(ctx, req)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.repo.CountDebts(ctx, req)
	if err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// ListOverdue returns open debts past their due date at asOf.
func (s *Service) ListOverdue(ctx context.Context, asOf time.Time) ([]DebtRecord, error) {
	if asOf.IsZero() {
		asOf = s.now()
	}
	return s.repo.ListOverdue(ctx, asOf)
}

// CustomerOutstanding sums remaining amounts across a customer's open debts.
func (s *Service) CustomerOutstanding(ctx context.Context, customerID int64) (decimal.Decimal, error) {
	if customerID <= 0 {
		return decimal.Zero, fmt.Errorf("%w: customer is required", shared.ErrValidation)
	}
	return s.repo.CustomerOutstanding(ctx, customerID)
}
