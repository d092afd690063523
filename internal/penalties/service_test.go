package penalties

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/voltgrid-erp/voltgrid/internal/shared"
)

type memoryPenaltyRepo struct {
	penalties map[int64]*Penalty
	nextID    int64
}

func newMemoryPenaltyRepo() *memoryPenaltyRepo {
	return &memoryPenaltyRepo{penalties: map[int64]*Penalty{}, nextID: 1}
}

func (m *memoryPenaltyRepo) CreatePenalty(_ context.Context, p Penalty) (*Penalty, error) {
	p.ID = m.nextID
	m.nextID++
	p.CreatedAt = time.Now()
	m.penalties[p.ID] = &p
	cp := p
	return &cp, nil
}

func (m *memoryPenaltyRepo) GetPenalty(_ context.Context, id int64) (*Penalty, error) {
	p, ok := m.penalties[id]
	if !ok {
		return nil, ErrPenaltyNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memoryPenaltyRepo) ListByDebt(_ context.Context, debtID int64) ([]Penalty, error) {
	var out []Penalty
	for _, p := range m.penalties {
		if p.DebtRecordID != nil && *p.DebtRecordID == debtID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *memoryPenaltyRepo) ListByCustomer(_ context.Context, customerID int64, status PenaltyStatus) ([]Penalty, error) {
	var out []Penalty
	for _, p := range m.penalties {
		if p.CustomerID != customerID {
			continue
		}
		if status != "" && p.Status != status {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

func (m *memoryPenaltyRepo) OpenTotal(_ context.Context, customerID int64) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, p := range m.penalties {
		if p.CustomerID == customerID && p.Status.Open() {
			total = total.Add(p.CalculatedAmount)
		}
	}
	return total, nil
}

func (m *memoryPenaltyRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryPenaltyTx{repo: m})
}

type memoryPenaltyTx struct {
	repo *memoryPenaltyRepo
}

func (t *memoryPenaltyTx) GetPenaltyForUpdate(ctx context.Context, id int64) (*Penalty, error) {
	return t.repo.GetPenalty(ctx, id)
}

func (t *memoryPenaltyTx) UpdateStatus(_ context.Context, id int64, status PenaltyStatus, waivedBy *int64, waivedAt *time.Time, waiverReason *string) error {
	p, ok := t.repo.penalties[id]
	if !ok {
		return ErrPenaltyNotFound
	}
	p.Status = status
	p.WaivedBy = waivedBy
	p.WaivedAt = waivedAt
	p.WaiverReason = waiverReason
	return nil
}

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, shared.AuditLog) error { return nil }

func newPenaltyService(repo *memoryPenaltyRepo) *Service {
	svc := NewService(repo, nopRecorder{})
	svc.now = func() time.Time { return time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC) }
	return svc
}

func d(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	v, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return v
}

func ref(v int64) *int64 { return &v }

func TestComputeFormulas(t *testing.T) {
	cases := []struct {
		name string
		calc CalculationType
		base string
		rate string
		days int
		want string
	}{
		{"fixed flat charge", CalcFixed, "1000", "25", 0, "25"},
		{"fixed ignores base and days", CalcFixed, "99999", "10", 30, "10"},
		{"percentage of base", CalcPercentage, "1000", "5", 0, "50"},
		{"percentage rounds half away", CalcPercentage, "333.33", "5", 0, "16.67"},
		{"daily rate accrues per day", CalcDailyRate, "1000", "1", 10, "100"},
		{"daily rate zero days", CalcDailyRate, "1000", "1", 0, "0"},
		{"zero rate yields zero", CalcPercentage, "1000", "0", 0, "0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Compute(tc.calc, d(t, tc.base), d(t, tc.rate), tc.days)
			require.NoError(t, err)
			require.True(t, got.Equal(d(t, tc.want)), "got %s want %s", got, tc.want)
		})
	}
}

func TestComputeRejectsUnknownType(t *testing.T) {
	_, err := Compute("compound", d(t, "100"), d(t, "5"), 0)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestApplyPenaltyFreezesAmount(t *testing.T) {
	repo := newMemoryPenaltyRepo()
	svc := newPenaltyService(repo)

	p, err := svc.ApplyPenalty(context.Background(), ApplyPenaltyInput{
		CustomerID:      7,
		DebtRecordID:    ref(10),
		PenaltyType:     PenaltyLateFee,
		CalculationType: CalcPercentage,
		BaseAmount:      d(t, "1000"),
		Rate:            d(t, "5"),
		Reason:          "30 days overdue",
		ActorID:         1,
	})
	require.NoError(t, err)
	require.True(t, p.CalculatedAmount.Equal(d(t, "50")))
	require.Equal(t, PenaltyApplied, p.Status)
	require.Equal(t, time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC), p.AppliedDate)
}

func TestApplyPenaltyValidation(t *testing.T) {
	svc := newPenaltyService(newMemoryPenaltyRepo())
	ctx := context.Background()

	_, err := svc.ApplyPenalty(ctx, ApplyPenaltyInput{PenaltyType: PenaltyLateFee, CalculationType: CalcFixed})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.ApplyPenalty(ctx, ApplyPenaltyInput{CustomerID: 7, PenaltyType: "exotic", CalculationType: CalcFixed})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.ApplyPenalty(ctx, ApplyPenaltyInput{CustomerID: 7, PenaltyType: PenaltyLateFee, CalculationType: "compound"})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.ApplyPenalty(ctx, ApplyPenaltyInput{
		CustomerID: 7, PenaltyType: PenaltyLateFee, CalculationType: CalcDailyRate,
		BaseAmount: d(t, "100"), Rate: d(t, "1"), DaysOverdue: -3,
	})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.ApplyPenalty(ctx, ApplyPenaltyInput{
		CustomerID: 7, PenaltyType: PenaltyLateFee, CalculationType: CalcPercentage,
		BaseAmount: d(t, "-100"), Rate: d(t, "5"),
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestApplyPenaltyMissingRateYieldsZero(t *testing.T) {
	svc := newPenaltyService(newMemoryPenaltyRepo())

	p, err := svc.ApplyPenalty(context.Background(), ApplyPenaltyInput{
		CustomerID:      7,
		PenaltyType:     PenaltyInterest,
		CalculationType: CalcDailyRate,
		BaseAmount:      d(t, "1000"),
	})
	require.NoError(t, err)
	require.True(t, p.CalculatedAmount.IsZero())
}

func TestWaivePenaltyOnce(t *testing.T) {
	repo := newMemoryPenaltyRepo()
	svc := newPenaltyService(repo)
	ctx := context.Background()

	p, err := svc.ApplyPenalty(ctx, ApplyPenaltyInput{
		CustomerID: 7, DebtRecordID: ref(10),
		PenaltyType: PenaltyLateFee, CalculationType: CalcFixed, Rate: d(t, "25"),
	})
	require.NoError(t, err)

	require.NoError(t, svc.Waive(ctx, p.ID, 42, "goodwill"))
	got, err := svc.GetPenalty(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, PenaltyWaived, got.Status)
	require.NotNil(t, got.WaivedBy)
	require.Equal(t, int64(42), *got.WaivedBy)
	require.NotNil(t, got.WaiverReason)
	require.Equal(t, "goodwill", *got.WaiverReason)

	err = svc.Waive(ctx, p.ID, 42, "again")
	require.ErrorIs(t, err, ErrPenaltyClosed)
}

func TestWaiveRequiresReason(t *testing.T) {
	svc := newPenaltyService(newMemoryPenaltyRepo())
	err := svc.Waive(context.Background(), 1, 42, "")
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestMarkPaidOnlyOpen(t *testing.T) {
	repo := newMemoryPenaltyRepo()
	svc := newPenaltyService(repo)
	ctx := context.Background()

	p, err := svc.ApplyPenalty(ctx, ApplyPenaltyInput{
		CustomerID: 7, PenaltyType: PenaltyLegalFee, CalculationType: CalcFixed, Rate: d(t, "25"),
	})
	require.NoError(t, err)

	require.NoError(t, svc.MarkPaid(ctx, p.ID))
	got, err := svc.GetPenalty(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, PenaltyPaid, got.Status)

	err = svc.MarkPaid(ctx, p.ID)
	require.ErrorIs(t, err, ErrPenaltyClosed)

	err = svc.Waive(ctx, p.ID, 42, "too late")
	require.ErrorIs(t, err, ErrPenaltyClosed)
}

func TestOpenTotalExcludesSettled(t *testing.T) {
	repo := newMemoryPenaltyRepo()
	svc := newPenaltyService(repo)
	ctx := context.Background()

	first, err := svc.ApplyPenalty(ctx, ApplyPenaltyInput{
		CustomerID: 7, PenaltyType: PenaltyLateFee, CalculationType: CalcFixed, Rate: d(t, "25"),
	})
	require.NoError(t, err)
	_, err = svc.ApplyPenalty(ctx, ApplyPenaltyInput{
		CustomerID: 7, PenaltyType: PenaltyInterest, CalculationType: CalcPercentage,
		BaseAmount: d(t, "1000"), Rate: d(t, "5"),
	})
	require.NoError(t, err)
	_, err = svc.ApplyPenalty(ctx, ApplyPenaltyInput{
		CustomerID: 9, PenaltyType: PenaltyLateFee, CalculationType: CalcFixed, Rate: d(t, "99"),
	})
	require.NoError(t, err)

	require.NoError(t, svc.Waive(ctx, first.ID, 42, "goodwill"))

	total, err := svc.OpenTotal(ctx, 7)
	require.NoError(t, err)
	require.True(t, total.Equal(d(t, "50")))
}
