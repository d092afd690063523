// Package collection ties the debt ledger, payment plans and penalties
// together into the customer-facing collections workflow.
package collection

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/voltgrid-erp/voltgrid/internal/debts"
	"github.com/voltgrid-erp/voltgrid/internal/money"
	"github.com/voltgrid-erp/voltgrid/internal/paymentplans"
	"github.com/voltgrid-erp/voltgrid/internal/penalties"
	"github.com/voltgrid-erp/voltgrid/internal/shared"
)

// DebtLedger is the slice of the debt service the orchestrator depends on.
type DebtLedger interface {
	GetDebt(ctx context.Context, id int64) (*debts.DebtRecord, error)
	AbsorbCharge(ctx context.Context, debtID int64, amount decimal.Decimal) (*debts.DebtRecord, error)
	SendToCollection(ctx context.Context, debtID int64) error
	ListDebts(ctx context.Context, req debts.ListDebtsRequest) ([]debts.DebtRecord, int, error)
	CustomerOutstanding(ctx context.Context, customerID int64) (decimal.Decimal, error)
}

// PenaltyBook is the slice of the penalty service the orchestrator depends on.
type PenaltyBook interface {
	GetPenalty(ctx context.Context, id int64) (*penalties.Penalty, error)
	MarkPaid(ctx context.Context, id int64) error
	OpenTotal(ctx context.Context, customerID int64) (decimal.Decimal, error)
}

// PlanDesk is the slice of the plan service the orchestrator depends on.
type PlanDesk interface {
	CreatePlan(ctx context.Context, input paymentplans.CreatePlanInput) (*paymentplans.PlanWithInstallments, error)
	ListPlans(ctx context.Context, customerID int64, status paymentplans.PlanStatus) ([]paymentplans.PaymentPlan, error)
}

// Service orchestrates cross-engine collection workflows. Penalties feed back
// into the ledger only through AbsorbPenalty, never automatically.
type Service struct {
	ledger    DebtLedger
	penalties PenaltyBook
	plans     PlanDesk
	cache     *Cache
	audit     shared.Recorder
	group     singleflight.Group
	now       func() time.Time
}

// NewService builds a Service instance.
func NewService(ledger DebtLedger, penaltyBook PenaltyBook, plans PlanDesk, cache *Cache, audit shared.Recorder) *Service {
	return &Service{
		ledger:    ledger,
		penalties: penaltyBook,
		plans:     plans,
		cache:     cache,
		audit:     audit,
		now:       time.Now,
	}
}

// AbsorbPenalty folds an open penalty into its debt's balance: the debt's
// original and remaining amounts grow by the calculated amount and the penalty
// is settled. The penalty must reference the given debt.
func (s *Service) AbsorbPenalty(ctx context.Context, debtID, penaltyID, actorID int64) (*debts.DebtRecord, error) {
	penalty, err := s.penalties.GetPenalty(ctx, penaltyID)
	if err != nil {
		return nil, err
	}
	if !penalty.Status.Open() {
		return nil, fmt.Errorf("%w: penalty already waived or settled", shared.ErrStateConflict)
	}
	if penalty.DebtRecordID == nil || *penalty.DebtRecordID != debtID {
		return nil, fmt.Errorf("%w: penalty does not reference debt %d", shared.ErrValidation, debtID)
	}
	if !penalty.CalculatedAmount.IsPositive() {
		return nil, fmt.Errorf("%w: penalty amount is zero", shared.ErrValidation)
	}

	debt, err := s.ledger.AbsorbCharge(ctx, debtID, penalty.CalculatedAmount)
	if err != nil {
		return nil, err
	}
	if err := s.penalties.MarkPaid(ctx, penaltyID); err != nil {
		return nil, fmt.Errorf("settle absorbed penalty: %w", err)
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   "collection.absorb_penalty",
			Entity:   "debt",
			EntityID: strconv.FormatInt(debtID, 10),
			Meta: map[string]any{
				"penalty_id": penaltyID,
				"amount":     penalty.CalculatedAmount.StringFixed(2),
			},
		})
	}
	_ = s.cache.Bump(ctx)
	return debt, nil
}

// OfferPlanInput carries negotiation terms for converting a debt into a plan.
type OfferPlanInput struct {
	DebtID               int64
	PlanName             string
	NumberOfInstallments int
	Frequency            money.Frequency
	StartDate            time.Time
	InterestRate         decimal.Decimal
	ActorID              int64
}

// OfferPlan drafts an installment plan over a debt's remaining balance and
// flags the debt as under active collection. The debt stays open; the plan
// must still be approved, and paying it does not settle the debt implicitly.
func (s *Service) OfferPlan(ctx context.Context, input OfferPlanInput) (*paymentplans.PlanWithInstallments, error) {
	debt, err := s.ledger.GetDebt(ctx, input.DebtID)
	if err != nil {
		return nil, err
	}
	if debt.Status.Terminal() {
		return nil, fmt.Errorf("%w: debt already settled or written off", shared.ErrStateConflict)
	}
	if !debt.RemainingAmount.IsPositive() {
		return nil, fmt.Errorf("%w: debt has no remaining balance", shared.ErrValidation)
	}

	plan, err := s.plans.CreatePlan(ctx, paymentplans.CreatePlanInput{
		CustomerID:           debt.CustomerID,
		PlanName:             input.PlanName,
		TotalPrincipal:       debt.RemainingAmount,
		NumberOfInstallments: input.NumberOfInstallments,
		Frequency:            input.Frequency,
		StartDate:            input.StartDate,
		InterestRate:         input.InterestRate,
	})
	if err != nil {
		return nil, err
	}

	if debt.Status != debts.StatusInCollection {
		if err := s.ledger.SendToCollection(ctx, input.DebtID); err != nil {
			return nil, fmt.Errorf("move debt to collection: %w", err)
		}
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   "collection.offer_plan",
			Entity:   "debt",
			EntityID: strconv.FormatInt(input.DebtID, 10),
			Meta: map[string]any{
				"plan_id":      plan.ID,
				"installments": input.NumberOfInstallments,
				"principal":    debt.RemainingAmount.StringFixed(2),
			},
		})
	}
	_ = s.cache.Bump(ctx)
	return plan, nil
}

// CustomerSummary aggregates a customer's collection exposure.
type CustomerSummary struct {
	CustomerID       int64           `json:"customer_id"`
	OutstandingDebt  decimal.Decimal `json:"outstanding_debt"`
	OpenPenaltyTotal decimal.Decimal `json:"open_penalty_total"`
	TotalExposure    decimal.Decimal `json:"total_exposure"`
	OpenDebts        int             `json:"open_debts"`
	ActivePlans      int             `json:"active_plans"`
	GeneratedAt      time.Time       `json:"generated_at"`
}

// Summary returns a customer's aggregated exposure, cached under a versioned
// key. Concurrent cold loads for the same customer collapse into one build.
func (s *Service) Summary(ctx context.Context, customerID int64) (*CustomerSummary, error) {
	if customerID <= 0 {
		return nil, fmt.Errorf("%w: customer is required", shared.ErrValidation)
	}

	key, err := s.cache.BuildKey(ctx, "collections", "summary", strconv.FormatInt(customerID, 10))
	if err != nil {
		return nil, err
	}

	result, err, _ := s.group.Do(key, func() (interface{}, error) {
		var summary CustomerSummary
		err := s.cache.FetchJSON(ctx, key, &summary, func(ctx context.Context) (interface{}, error) {
			return s.buildSummary(ctx, customerID)
		})
		if err != nil {
			return nil, err
		}
		return &summary, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*CustomerSummary), nil
}

func (s *Service) buildSummary(ctx context.Context, customerID int64) (*CustomerSummary, error) {
	outstanding, err := s.ledger.CustomerOutstanding(ctx, customerID)
	if err != nil {
		return nil, err
	}
	penaltyTotal, err := s.penalties.OpenTotal(ctx, customerID)
	if err != nil {
		return nil, err
	}
	_, openDebts, err := s.ledger.ListDebts(ctx, debts.ListDebtsRequest{CustomerID: customerID})
	if err != nil {
		return nil, err
	}
	activePlans, err := s.plans.ListPlans(ctx, customerID, paymentplans.PlanStatusActive)
	if err != nil {
		return nil, err
	}

	return &CustomerSummary{
		CustomerID:       customerID,
		OutstandingDebt:  outstanding,
		OpenPenaltyTotal: penaltyTotal,
		TotalExposure:    outstanding.Add(penaltyTotal),
		OpenDebts:        openDebts,
		ActivePlans:      len(activePlans),
		GeneratedAt:      s.now(),
	}, nil
}

// Escalation thresholds in days overdue.
const (
	reminderAfterDays    = 7
	warningAfterDays     = 30
	finalNoticeAfterDays = 60
	legalAfterDays       = 90
)

// RecommendStage returns the collection stage a debt should sit in given how
// long it has been overdue at asOf. The second return reports whether that is
// a move forward from the debt's current stage. Closed debts never escalate.
func RecommendStage(debt debts.DebtRecord, asOf time.Time) (debts.CollectionStage, bool) {
	if debt.Status.Terminal() || debt.Status == debts.StatusDisputed {
		return debt.CollectionStage, false
	}
	daysOverdue := int(asOf.Sub(debt.DueDate).Hours() / 24)

	var recommended debts.CollectionStage
	switch {
	case daysOverdue >= legalAfterDays:
		recommended = debts.StageLegal
	case daysOverdue >= finalNoticeAfterDays:
		recommended = debts.StageFinalNotice
	case daysOverdue >= warningAfterDays:
		recommended = debts.StageWarning
	case daysOverdue >= reminderAfterDays:
		recommended = debts.StageReminder
	default:
		return debt.CollectionStage, false
	}

	if stageRank(recommended) > stageRank(debt.CollectionStage) {
		return recommended, true
	}
	return debt.CollectionStage, false
}

func stageRank(stage debts.CollectionStage) int {
	switch stage {
	case debts.StageNormal:
		return 0
	case debts.StageReminder:
		return 1
	case debts.StageWarning:
		return 2
	case debts.StageFinalNotice:
		return 3
	case debts.StageLegal:
		return 4
	case debts.StageWrittenOff:
		return 5
	}
	return -1
}
