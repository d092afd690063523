package paymentplans

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/voltgrid-erp/voltgrid/internal/money"
	"github.com/voltgrid-erp/voltgrid/internal/shared"
)

// Schedule is the computed installment series for a plan before persistence.
type Schedule struct {
	TotalAmount       decimal.Decimal
	InterestAmount    decimal.Decimal
	InstallmentAmount decimal.Decimal
	EndDate           time.Time
	Installments      []Installment
}

// BuildSchedule derives the full installment series from plan terms.
// Principal and interest pools are each split evenly across N installments
// with leftover cents spread across the earliest ones, so the installment
// amounts sum to principal plus interest exactly and stay non-negative even
// for totals smaller than a cent per installment.
func BuildSchedule(input CreatePlanInput) (*Schedule, error) {
	if input.NumberOfInstallments < 1 {
		return nil, fmt.Errorf("%w: number of installments must be at least 1", shared.ErrValidation)
	}
	if !input.TotalPrincipal.IsPositive() {
		return nil, fmt.Errorf("%w: total principal must be positive", shared.ErrValidation)
	}
	if !input.Frequency.Valid() {
		return nil, fmt.Errorf("%w: unknown frequency %q", shared.ErrValidation, input.Frequency)
	}
	if input.StartDate.IsZero() {
		return nil, fmt.Errorf("%w: start date is required", shared.ErrValidation)
	}
	if input.InterestRate.IsNegative() || input.LateFeePercent.IsNegative() {
		return nil, fmt.Errorf("%w: rates must not be negative", shared.ErrValidation)
	}

	n := input.NumberOfInstallments
	interest := money.ApplyInterest(input.TotalPrincipal, input.InterestRate)
	total := input.TotalPrincipal.Add(interest)

	principalParts, err := money.SplitEven(input.TotalPrincipal, n)
	if err != nil {
		return nil, err
	}
	interestParts, err := money.SplitEven(interest, n)
	if err != nil {
		return nil, err
	}

	installments := make([]Installment, n)
	for i := 0; i < n; i++ {
		dueDate, err := money.Advance(input.StartDate, input.Frequency, i)
		if err != nil {
			return nil, err
		}
		installments[i] = Installment{
			InstallmentNumber: i + 1,
			DueDate:           dueDate,
			Amount:            principalParts[i].Add(interestParts[i]),
			PrincipalAmount:   principalParts[i],
			InterestAmount:    interestParts[i],
			PaidAmount:        decimal.Zero,
			Status:            InstallmentPending,
		}
	}

	return &Schedule{
		TotalAmount:       total,
		InterestAmount:    interest,
		InstallmentAmount: money.Round(total.Div(decimal.NewFromInt(int64(n)))),
		EndDate:           installments[n-1].DueDate,
		Installments:      installments,
	}, nil
}
