package paymentplans

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/voltgrid-erp/voltgrid/internal/money"
	"github.com/voltgrid-erp/voltgrid/internal/shared"
)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func TestBuildScheduleMonthly(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	sched, err := BuildSchedule(CreatePlanInput{
		CustomerID:           1,
		TotalPrincipal:       dec(t, "1200"),
		NumberOfInstallments: 12,
		Frequency:            money.FrequencyMonthly,
		StartDate:            start,
	})
	require.NoError(t, err)
	require.Len(t, sched.Installments, 12)
	require.True(t, sched.TotalAmount.Equal(dec(t, "1200")))

	for i, inst := range sched.Installments {
		require.Equal(t, i+1, inst.InstallmentNumber)
		require.True(t, inst.Amount.Equal(dec(t, "100")), "installment %d amount %s", i+1, inst.Amount)
		require.Equal(t, time.Month(i+1), inst.DueDate.Month())
		require.Equal(t, 1, inst.DueDate.Day())
		require.Equal(t, 2025, inst.DueDate.Year())
	}
	require.Equal(t, time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC), sched.EndDate)
}

func TestBuildScheduleInterestAddsToTotal(t *testing.T) {
	sched, err := BuildSchedule(CreatePlanInput{
		CustomerID:           1,
		TotalPrincipal:       dec(t, "1000"),
		NumberOfInstallments: 6,
		Frequency:            money.FrequencyMonthly,
		StartDate:            time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC),
		InterestRate:         dec(t, "12"),
	})
	require.NoError(t, err)
	require.True(t, sched.InterestAmount.Equal(dec(t, "120")))
	require.True(t, sched.TotalAmount.Equal(dec(t, "1120")))
}

func TestBuildScheduleInstallmentsSumExactly(t *testing.T) {
	cases := []struct {
		principal string
		rate      string
		n         int
	}{
		{"1000", "0", 3},
		{"999.99", "5", 7},
		{"100", "3.5", 12},
		{"0.03", "0", 2},
		{"0.10", "0", 12},
		{"0.05", "5", 4},
	}
	for _, tc := range cases {
		sched, err := BuildSchedule(CreatePlanInput{
			CustomerID:           1,
			TotalPrincipal:       dec(t, tc.principal),
			NumberOfInstallments: tc.n,
			Frequency:            money.FrequencyWeekly,
			StartDate:            time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
			InterestRate:         dec(t, tc.rate),
		})
		require.NoError(t, err)

		sum := decimal.Zero
		for _, inst := range sched.Installments {
			require.True(t, inst.Amount.Equal(inst.PrincipalAmount.Add(inst.InterestAmount)))
			require.False(t, inst.Amount.IsNegative(),
				"principal %s rate %s n %d: installment %d amount is negative: %s",
				tc.principal, tc.rate, tc.n, inst.InstallmentNumber, inst.Amount)
			require.False(t, inst.PrincipalAmount.IsNegative())
			require.False(t, inst.InterestAmount.IsNegative())
			sum = sum.Add(inst.Amount)
		}
		require.True(t, sum.Equal(sched.TotalAmount),
			"principal %s rate %s n %d: sum %s != total %s", tc.principal, tc.rate, tc.n, sum, sched.TotalAmount)
	}
}

func TestBuildScheduleRejectsBadInput(t *testing.T) {
	base := CreatePlanInput{
		CustomerID:           1,
		TotalPrincipal:       dec(t, "100"),
		NumberOfInstallments: 4,
		Frequency:            money.FrequencyMonthly,
		StartDate:            time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	zeroInstallments := base
	zeroInstallments.NumberOfInstallments = 0
	_, err := BuildSchedule(zeroInstallments)
	require.ErrorIs(t, err, shared.ErrValidation)

	negativePrincipal := base
	negativePrincipal.TotalPrincipal = dec(t, "-5")
	_, err = BuildSchedule(negativePrincipal)
	require.ErrorIs(t, err, shared.ErrValidation)

	badFrequency := base
	badFrequency.Frequency = "fortnightly"
	_, err = BuildSchedule(badFrequency)
	require.ErrorIs(t, err, shared.ErrValidation)

	noStart := base
	noStart.StartDate = time.Time{}
	_, err = BuildSchedule(noStart)
	require.ErrorIs(t, err, shared.ErrValidation)

	negativeRate := base
	negativeRate.InterestRate = dec(t, "-1")
	_, err = BuildSchedule(negativeRate)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestBuildScheduleQuarterlyDates(t *testing.T) {
	sched, err := BuildSchedule(CreatePlanInput{
		CustomerID:           1,
		TotalPrincipal:       dec(t, "400"),
		NumberOfInstallments: 4,
		Frequency:            money.FrequencyQuarterly,
		StartDate:            time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	want := []time.Time{
		time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 5, 10, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 8, 10, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 11, 10, 0, 0, 0, 0, time.UTC),
	}
	for i, inst := range sched.Installments {
		require.Equal(t, want[i], inst.DueDate)
	}
}
