package paymentplans

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/voltgrid-erp/voltgrid/internal/money"
)

// PlanStatus enumerates payment plan statuses.
type PlanStatus string

const (
	PlanStatusDraft     PlanStatus = "draft"
	PlanStatusActive    PlanStatus = "active"
	PlanStatusCompleted PlanStatus = "completed"
	PlanStatusDefaulted PlanStatus = "defaulted"
	PlanStatusCancelled PlanStatus = "cancelled"
)

// InstallmentStatus enumerates statuses of one scheduled payment.
type InstallmentStatus string

const (
	InstallmentPending InstallmentStatus = "pending"
	InstallmentPartial InstallmentStatus = "partial"
	InstallmentPaid    InstallmentStatus = "paid"
	InstallmentOverdue InstallmentStatus = "overdue"
)

// PaymentPlan is a negotiated installment schedule replacing ad-hoc collection
// for one customer's balance.
type PaymentPlan struct {
	ID                   int64
	CustomerID           int64
	PlanName             string
	TotalAmount          decimal.Decimal
	PaidAmount           decimal.Decimal
	RemainingAmount      decimal.Decimal
	NumberOfInstallments int
	InstallmentAmount    decimal.Decimal
	Frequency            money.Frequency
	StartDate            time.Time
	EndDate              time.Time
	NextPaymentDate      *time.Time
	InterestRate         decimal.Decimal
	LateFeePercent       decimal.Decimal
	Status               PlanStatus
	ApprovedBy           *int64
	ApprovedAt           *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Installment is one scheduled payment within a plan.
// Invariant: Amount = PrincipalAmount + InterestAmount; PaidAmount <= Amount.
type Installment struct {
	ID                int64
	PlanID            int64
	InstallmentNumber int
	DueDate           time.Time
	Amount            decimal.Decimal
	PrincipalAmount   decimal.Decimal
	InterestAmount    decimal.Decimal
	PaidAmount        decimal.Decimal
	PaidDate          *time.Time
	Status            InstallmentStatus
	PaymentID         *string
	CreatedAt         time.Time
}

// PlanWithInstallments bundles a plan with its schedule sorted by number.
type PlanWithInstallments struct {
	PaymentPlan
	Installments []Installment
}

// CreatePlanInput carries fields for plan creation.
type CreatePlanInput struct {
	CustomerID           int64
	PlanName             string
	TotalPrincipal       decimal.Decimal
	NumberOfInstallments int
	Frequency            money.Frequency
	StartDate            time.Time
	InterestRate         decimal.Decimal
	LateFeePercent       decimal.Decimal
}
