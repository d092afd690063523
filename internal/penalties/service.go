package penalties

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/voltgrid-erp/voltgrid/internal/money"
	"github.com/voltgrid-erp/voltgrid/internal/shared"
)

var (
	// ErrPenaltyNotFound indicates the referenced penalty does not exist.
	ErrPenaltyNotFound = fmt.Errorf("penalty %w", shared.ErrNotFound)
	// ErrPenaltyClosed indicates the penalty was already waived or paid.
	ErrPenaltyClosed = fmt.Errorf("%w: penalty already waived or settled", shared.ErrStateConflict)
)

// Repository defines data access for penalties.
type Repository interface {
	CreatePenalty(ctx context.Context, p Penalty) (*Penalty, error)
	GetPenalty(ctx context.Context, id int64) (*Penalty, error)
	ListByDebt(ctx context.Context, debtID int64) ([]Penalty, error)
	ListByCustomer(ctx context.Context, customerID int64, status PenaltyStatus) ([]Penalty, error)
	OpenTotal(ctx context.Context, customerID int64) (decimal.Decimal, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes transactional penalty mutations.
type TxRepository interface {
	GetPenaltyForUpdate(ctx context.Context, id int64) (*Penalty, error)
	UpdateStatus(ctx context.Context, id int64, status PenaltyStatus, waivedBy *int64, waivedAt *time.Time, waiverReason *string) error
}

// Service assesses, waives and settles penalty charges. Penalties never adjust
// the underlying debt themselves; reconciliation is an explicit separate step.
type Service struct {
	repo  Repository
	audit shared.Recorder
	now   func() time.Time
}

// NewService builds a Service instance.
func NewService(repo Repository, audit shared.Recorder) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// Compute returns the charge for the given terms without persisting anything.
// Fixed penalties charge the rate as a flat amount, percentage penalties charge
// rate percent of the base, daily penalties charge rate percent per day overdue.
// Zero rate or days yield a zero charge rather than an error.
func Compute(calc CalculationType, base, rate decimal.Decimal, daysOverdue int) (decimal.Decimal, error) {
	switch calc {
	case CalcFixed:
		return money.Round(rate), nil
	case CalcPercentage:
		return money.ApplyInterest(base, rate), nil
	case CalcDailyRate:
		days := decimal.NewFromInt(int64(daysOverdue))
		return money.Round(base.Mul(rate).Div(decimal.NewFromInt(100)).Mul(days)), nil
	}
	return decimal.Zero, fmt.Errorf("%w: unknown calculation type %q", shared.ErrValidation, calc)
}

// ApplyPenalty assesses a new penalty and freezes the calculated amount.
func (s *Service) ApplyPenalty(ctx context.Context, input ApplyPenaltyInput) (*Penalty, error) {
	if input.CustomerID <= 0 {
		return nil, fmt.Errorf("%w: customer is required", shared.ErrValidation)
	}
	if !input.PenaltyType.Valid() {
		return nil, fmt.Errorf("%w: unknown penalty type %q", shared.ErrValidation, input.PenaltyType)
	}
	if !input.CalculationType.Valid() {
		return nil, fmt.Errorf("%w: unknown calculation type %q", shared.ErrValidation, input.CalculationType)
	}
	if input.BaseAmount.IsNegative() || input.Rate.IsNegative() {
		return nil, fmt.Errorf("%w: base amount and rate must not be negative", shared.ErrValidation)
	}
	if input.DaysOverdue < 0 {
		return nil, fmt.Errorf("%w: days overdue must not be negative", shared.ErrValidation)
	}

	amount, err := Compute(input.CalculationType, input.BaseAmount, input.Rate, input.DaysOverdue)
	if err != nil {
		return nil, err
	}

	penalty, err := s.repo.CreatePenalty(ctx, Penalty{
		CustomerID:       input.CustomerID,
		DebtRecordID:     input.DebtRecordID,
		InvoiceID:        input.InvoiceID,
		PenaltyType:      input.PenaltyType,
		CalculationType:  input.CalculationType,
		BaseAmount:       input.BaseAmount,
		Rate:             input.Rate,
		DaysOverdue:      input.DaysOverdue,
		CalculatedAmount: amount,
		Reason:           input.Reason,
		Status:           PenaltyApplied,
		AppliedDate:      s.now(),
	})
	if err != nil {
		return nil, err
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   "penalty.apply",
			Entity:   "penalty",
			EntityID: strconv.FormatInt(penalty.ID, 10),
			Meta: map[string]any{
				"type":        string(input.PenaltyType),
				"calculation": string(input.CalculationType),
				"amount":      amount.StringFixed(2),
			},
		})
	}
	return penalty, nil
}

// Waive cancels an open penalty. Waived penalties stay on record with the
// waiver attribution; a penalty can only be waived once.
func (s *Service) Waive(ctx context.Context, penaltyID, waivedBy int64, reason string) error {
	if reason == "" {
		return fmt.Errorf("%w: waiver reason is required", shared.ErrValidation)
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.GetPenaltyForUpdate(ctx, penaltyID)
		if err != nil {
			return err
		}
		if !p.Status.Open() {
			return ErrPenaltyClosed
		}
		now := s.now()
		return tx.UpdateStatus(ctx, penaltyID, PenaltyWaived, &waivedBy, &now, &reason)
	})
	if err != nil {
		return err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  waivedBy,
			Action:   "penalty.waive",
			Entity:   "penalty",
			EntityID: strconv.FormatInt(penaltyID, 10),
			Meta:     map[string]any{"reason": reason},
		})
	}
	return nil
}

// MarkPaid settles an open penalty.
func (s *Service) MarkPaid(ctx context.Context, penaltyID int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.GetPenaltyForUpdate(ctx, penaltyID)
		if err != nil {
			return err
		}
		if !p.Status.Open() {
			return ErrPenaltyClosed
		}
		return tx.UpdateStatus(ctx, penaltyID, PenaltyPaid, nil, nil, nil)
	})
}

// GetPenalty returns one penalty by id.
func (s *Service) GetPenalty(ctx context.Context, id int64) (*Penalty, error) {
	return s.repo.GetPenalty(ctx, id)
}

// ListByDebt returns all penalties assessed against a debt.
func (s *Service) ListByDebt(ctx context.Context, debtID int64) ([]Penalty, error) {
	return s.repo.ListByDebt(ctx, debtID)
}

// ListByCustomer returns a customer's penalties, optionally filtered by status.
func (s *Service) ListByCustomer(ctx context.Context, customerID int64, status PenaltyStatus) ([]Penalty, error) {
	return s.repo.ListByCustomer(ctx, customerID, status)
}

// OpenTotal sums a customer's pending and applied penalty exposure.
func (s *Service) OpenTotal(ctx context.Context, customerID int64) (decimal.Decimal, error) {
	return s.repo.OpenTotal(ctx, customerID)
}
