package paymentplans

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/voltgrid-erp/voltgrid/internal/shared"
)

var (
	// ErrPlanNotFound indicates the referenced plan does not exist.
	ErrPlanNotFound = fmt.Errorf("payment plan %w", shared.ErrNotFound)
	// ErrInstallmentNotFound indicates the referenced installment does not exist.
	ErrInstallmentNotFound = fmt.Errorf("installment %w", shared.ErrNotFound)
	// ErrPlanNotDraft indicates activation was attempted outside draft state.
	ErrPlanNotDraft = fmt.Errorf("%w: plan is not in draft", shared.ErrStateConflict)
	// ErrPlanNotOpen indicates a payment was attempted against a closed plan.
	ErrPlanNotOpen = fmt.Errorf("%w: plan does not accept payments", shared.ErrStateConflict)
	// ErrInstallmentSettled indicates the installment is already fully paid.
	ErrInstallmentSettled = fmt.Errorf("%w: installment already paid", shared.ErrStateConflict)
)

// Repository defines data access for payment plans.
type Repository interface {
	GetPlan(ctx context.Context, id int64) (*PaymentPlan, error)
	GetPlanWithInstallments(ctx context.Context, id int64) (*PlanWithInstallments, error)
	ListPlans(ctx context.Context, customerID int64, status PlanStatus) ([]PaymentPlan, error)
	MarkOverdue(ctx context.Context, asOf time.Time) (int64, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes transactional plan mutations. Plan creation inserts the
// plan row and every installment row in the same transaction so a failure
// partway never leaves a partial schedule visible.
type TxRepository interface {
	InsertPlan(ctx context.Context, plan PaymentPlan) (int64, error)
	InsertInstallment(ctx context.Context, inst Installment) (int64, error)
	GetPlanForUpdate(ctx context.Context, id int64) (*PaymentPlan, error)
	GetInstallmentForUpdate(ctx context.Context, id int64) (*Installment, error)
	UpdateInstallmentPayment(ctx context.Context, id int64, paid decimal.Decimal, status InstallmentStatus, paidDate *time.Time, paymentID *string) error
	UpdatePlanTotals(ctx context.Context, id int64, paid, remaining decimal.Decimal, status PlanStatus, nextPayment *time.Time) error
	UpdatePlanStatus(ctx context.Context, id int64, status PlanStatus, approvedBy *int64, approvedAt *time.Time) error
	NextPendingDueDate(ctx context.Context, planID int64) (*time.Time, error)
}

// Service converts one negotiated balance into a fixed, dated installment
// series and tracks its fulfillment.
type Service struct {
	repo  Repository
	audit shared.Recorder
	now   func() time.Time
}

// NewService builds a Service instance.
func NewService(repo Repository, audit shared.Recorder) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// CreatePlan generates the full schedule and persists it atomically.
// The plan starts in draft and must be approved before payments apply.
func (s *Service) CreatePlan(ctx context.Context, input CreatePlanInput) (*PlanWithInstallments, error) {
	if input.CustomerID <= 0 {
		return nil, fmt.Errorf("%w: customer is required", shared.ErrValidation)
	}
	schedule, err := BuildSchedule(input)
	if err != nil {
		return nil, err
	}

	firstDue := schedule.Installments[0].DueDate
	plan := PaymentPlan{
		CustomerID:           input.CustomerID,
		PlanName:             input.PlanName,
		TotalAmount:          schedule.TotalAmount,
		PaidAmount:           decimal.Zero,
		RemainingAmount:      schedule.TotalAmount,
		NumberOfInstallments: input.NumberOfInstallments,
		InstallmentAmount:    schedule.InstallmentAmount,
		Frequency:            input.Frequency,
		StartDate:            input.StartDate,
		EndDate:              schedule.EndDate,
		NextPaymentDate:      &firstDue,
		InterestRate:         input.InterestRate,
		LateFeePercent:       input.LateFeePercent,
		Status:               PlanStatusDraft,
	}

	var planID int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertPlan(ctx, plan)
		if err != nil {
			return err
		}
		planID = id
		for _, inst := range schedule.Installments {
			inst.PlanID = id
			if _, err := tx.InsertInstallment(ctx, inst); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.repo.GetPlanWithInstallments(ctx, planID)
}

// Activate moves a draft plan to active. Only draft plans can be activated.
func (s *Service) Activate(ctx context.Context, planID, approvedBy int64) error {
	if approvedBy <= 0 {
		return fmt.Errorf("%w: approver is required", shared.ErrValidation)
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		plan, err := tx.GetPlanForUpdate(ctx, planID)
		if err != nil {
			return err
		}
		if plan.Status != PlanStatusDraft {
			return ErrPlanNotDraft
		}
		now := s.now()
		return tx.UpdatePlanStatus(ctx, planID, PlanStatusActive, &approvedBy, &now)
	})
	if err != nil {
		return err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  approvedBy,
			Action:   "plan.activate",
			Entity:   "payment_plan",
			EntityID: strconv.FormatInt(planID, 10),
		})
	}
	return nil
}

// Cancel closes a draft or active plan without settling it.
func (s *Service) Cancel(ctx context.Context, planID int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		plan, err := tx.GetPlanForUpdate(ctx, planID)
		if err != nil {
			return err
		}
		if plan.Status != PlanStatusDraft && plan.Status != PlanStatusActive {
			return fmt.Errorf("%w: plan cannot be cancelled from %s", shared.ErrStateConflict, plan.Status)
		}
		return tx.UpdatePlanStatus(ctx, planID, PlanStatusCancelled, nil, nil)
	})
}

// MarkDefaulted flags an active plan the customer has stopped servicing.
func (s *Service) MarkDefaulted(ctx context.Context, planID int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		plan, err := tx.GetPlanForUpdate(ctx, planID)
		if err != nil {
			return err
		}
		if plan.Status != PlanStatusActive {
			return fmt.Errorf("%w: only active plans can default", shared.ErrStateConflict)
		}
		return tx.UpdatePlanStatus(ctx, planID, PlanStatusDefaulted, nil, nil)
	})
}

// RecordInstallmentPayment applies a payment to one installment and rolls the
// applied amount up into the plan totals. Payment is clamped at the amount
// still due on the installment; the plan auto-completes when fully paid.
func (s *Service) RecordInstallmentPayment(ctx context.Context, installmentID int64, amount decimal.Decimal, paymentID string) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: payment amount must be positive", shared.ErrValidation)
	}
	if paymentID == "" {
		paymentID = uuid.NewString()
	}

	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inst, err := tx.GetInstallmentForUpdate(ctx, installmentID)
		if err != nil {
			return err
		}
		if inst.Status == InstallmentPaid {
			return ErrInstallmentSettled
		}
		plan, err := tx.GetPlanForUpdate(ctx, inst.PlanID)
		if err != nil {
			return err
		}
		if plan.Status != PlanStatusActive {
			return ErrPlanNotOpen
		}

		due := inst.Amount.Sub(inst.PaidAmount)
		applied := decimal.Min(amount, due)
		instPaid := inst.PaidAmount.Add(applied)

		status := InstallmentPartial
		var paidDate *time.Time
		if instPaid.GreaterThanOrEqual(inst.Amount) {
			status = InstallmentPaid
			now := s.now()
			paidDate = &now
		}
		if err := tx.UpdateInstallmentPayment(ctx, installmentID, instPaid, status, paidDate, &paymentID); err != nil {
			return err
		}

		planPaid := plan.PaidAmount.Add(applied)
		planRemaining := plan.RemainingAmount.Sub(applied)
		planStatus := plan.Status
		if planRemaining.LessThanOrEqual(decimal.Zero) {
			planStatus = PlanStatusCompleted
		}
		nextDue, err := tx.NextPendingDueDate(ctx, inst.PlanID)
		if err != nil {
			return err
		}
		return tx.UpdatePlanTotals(ctx, inst.PlanID, planPaid, planRemaining, planStatus, nextDue)
	})
}

// GetPlan returns a plan with its installments sorted by installment number.
func (s *Service) GetPlan(ctx context.Context, id int64) (*PlanWithInstallments, error) {
	return s.repo.GetPlanWithInstallments(ctx, id)
}

// ListPlans returns plans for a customer, optionally filtered by status.
func (s *Service) ListPlans(ctx context.Context, customerID int64, status PlanStatus) ([]PaymentPlan, error) {
	return s.repo.ListPlans(ctx, customerID, status)
}

// MarkOverdue flips pending or partial installments past their due date to
// overdue. Used by the nightly scan; returns the number of rows touched.
func (s *Service) MarkOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	if asOf.IsZero() {
		asOf = s.now()
	}
	return s.repo.MarkOverdue(ctx, asOf)
}
