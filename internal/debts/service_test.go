package debts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/voltgrid-erp/voltgrid/internal/shared"
)

type memoryDebtRepo struct {
	debts  map[int64]*DebtRecord
	nextID int64
}

func newMemoryDebtRepo() *memoryDebtRepo {
	return &memoryDebtRepo{debts: make(map[int64]*DebtRecord)}
}

func (r *memoryDebtRepo) CreateDebt(ctx context.Context, input CreateDebtInput) (*DebtRecord, error) {
	r.nextID++
	now := time.Now()
	d := &DebtRecord{
		ID:              r.nextID,
		CustomerID:      input.CustomerID,
		DebtType:        input.DebtType,
		ReferenceType:   input.ReferenceType,
		ReferenceID:     input.ReferenceID,
		OriginalAmount:  input.OriginalAmount,
		PaidAmount:      decimal.Zero,
		RemainingAmount: input.OriginalAmount,
		DueDate:         input.DueDate,
		Status:          StatusActive,
		CollectionStage: StageNormal,
		Notes:           input.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	r.debts[d.ID] = d
	return d, nil
}

func (r *memoryDebtRepo) GetDebt(ctx context.Context, id int64) (*DebtRecord, error) {
	d, ok := r.debts[id]
	if !ok {
		return nil, ErrDebtNotFound
	}
	copied := *d
	return &copied, nil
}

func (r *memoryDebtRepo) ListDebts(ctx context.Context, req ListDebtsRequest) ([]DebtRecord, error) {
	var out []DebtRecord
	for _, d := range r.debts {
		if req.CustomerID != 0 && d.CustomerID != req.CustomerID {
			continue
		}
		if req.Status != "" && d.Status != req.Status {
			continue
		}
		if req.Stage != "" && d.CollectionStage != req.Stage {
			continue
		}
		out = append(out, *d)
	}
	return out, nil
}

func (r *memoryDebtRepo) CountDebts(ctx context.Context, req ListDebtsRequest) (int, error) {
	list, err := r.ListDebts(ctx, req)
	return len(list), err
}

func (r *memoryDebtRepo) ListOverdue(ctx context.Context, asOf time.Time) ([]DebtRecord, error) {
	var out []DebtRecord
	for _, d := range r.debts {
		if d.DueDate.Before(asOf) && !d.Status.Terminal() && d.Status != StatusDisputed {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (r *memoryDebtRepo) CustomerOutstanding(ctx context.Context, customerID int64) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, d := range r.debts {
		if d.CustomerID == customerID && !d.Status.Terminal() {
			total = total.Add(d.RemainingAmount)
		}
	}
	return total, nil
}

func (r *memoryDebtRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryDebtTx{repo: r})
}

type memoryDebtTx struct {
	repo *memoryDebtRepo
}

func (t *memoryDebtTx) GetDebtForUpdate(ctx context.Context, id int64) (*DebtRecord, error) {
	return t.repo.GetDebt(ctx, id)
}

func (t *memoryDebtTx) UpdateBalances(ctx context.Context, id int64, paid, remaining decimal.Decimal, status DebtStatus, paidAt time.Time) error {
	d := t.repo.debts[id]
	d.PaidAmount = paid
	d.RemainingAmount = remaining
	d.Status = status
	d.LastPaymentDate = &paidAt
	return nil
}

func (t *memoryDebtTx) AddCharge(ctx context.Context, id int64, original, remaining decimal.Decimal) error {
	d := t.repo.debts[id]
	d.OriginalAmount = original
	d.RemainingAmount = remaining
	return nil
}

func (t *memoryDebtTx) UpdateStage(ctx context.Context, id int64, stage CollectionStage, collectorID *int64, reminderAt time.Time) error {
	d := t.repo.debts[id]
	d.CollectionStage = stage
	if collectorID != nil {
		d.AssignedCollectorID = collectorID
	}
	d.ReminderCount++
	d.LastReminderDate = &reminderAt
	return nil
}

func (t *memoryDebtTx) UpdateStatus(ctx context.Context, id int64, status DebtStatus, stage CollectionStage) error {
	d := t.repo.debts[id]
	d.Status = status
	d.CollectionStage = stage
	return nil
}

type captureDispatcher struct {
	enqueued []DebtRecord
	fail     error
}

func (c *captureDispatcher) EnqueueReminder(ctx context.Context, debt DebtRecord) error {
	if c.fail != nil {
		return c.fail
	}
	c.enqueued = append(c.enqueued, debt)
	return nil
}

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func newTestService(t *testing.T) (*Service, *memoryDebtRepo, *captureDispatcher) {
	t.Helper()
	repo := newMemoryDebtRepo()
	dispatcher := &captureDispatcher{}
	return NewService(repo, nil, dispatcher), repo, dispatcher
}

func createTestDebt(t *testing.T, svc *Service, amount string) *DebtRecord {
	t.Helper()
	debt, err := svc.CreateDebt(context.Background(), CreateDebtInput{
		CustomerID:     42,
		DebtType:       DebtTypeInvoice,
		OriginalAmount: d(amount),
		DueDate:        time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return debt
}

func TestCreateDebtInitialState(t *testing.T) {
	svc, _, _ := newTestService(t)
	debt := createTestDebt(t, svc, "1000")

	require.True(t, debt.RemainingAmount.Equal(d("1000")))
	require.True(t, debt.PaidAmount.IsZero())
	require.Equal(t, StatusActive, debt.Status)
	require.Equal(t, StageNormal, debt.CollectionStage)
}

func TestCreateDebtRejectsBadInput(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateDebt(ctx, CreateDebtInput{CustomerID: 0, DebtType: DebtTypeInvoice, OriginalAmount: d("10"), DueDate: time.Now()})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.CreateDebt(ctx, CreateDebtInput{CustomerID: 1, DebtType: DebtTypeInvoice, OriginalAmount: d("0"), DueDate: time.Now()})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.CreateDebt(ctx, CreateDebtInput{CustomerID: 1, DebtType: DebtTypeInvoice, OriginalAmount: d("-5"), DueDate: time.Now()})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.CreateDebt(ctx, CreateDebtInput{CustomerID: 1, DebtType: DebtType("loan"), OriginalAmount: d("10"), DueDate: time.Now()})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestRecordPaymentLifecycle(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	debt := createTestDebt(t, svc, "1000")

	result, err := svc.RecordPayment(ctx, debt.ID, d("400"), time.Time{})
	require.NoError(t, err)
	require.True(t, result.RemainingAmount.Equal(d("600")))
	require.Equal(t, StatusPartiallyPaid, result.Status)

	result, err = svc.RecordPayment(ctx, debt.ID, d("600"), time.Time{})
	require.NoError(t, err)
	require.True(t, result.RemainingAmount.IsZero())
	require.Equal(t, StatusPaid, result.Status)

	stored := repo.debts[debt.ID]
	require.True(t, stored.PaidAmount.Add(stored.RemainingAmount).Equal(stored.OriginalAmount))
	require.NotNil(t, stored.LastPaymentDate)
}

func TestRecordPaymentBalanceConservation(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	debt := createTestDebt(t, svc, "500.01")

	for _, amount := range []string{"0.01", "123.45", "100", "276.55"} {
		_, err := svc.RecordPayment(ctx, debt.ID, d(amount), time.Time{})
		require.NoError(t, err)
		stored := repo.debts[debt.ID]
		require.True(t, stored.PaidAmount.Add(stored.RemainingAmount).Equal(stored.OriginalAmount),
			"conservation broken after paying %s", amount)
	}
	require.Equal(t, StatusPaid, repo.debts[debt.ID].Status)
}

func TestRecordPaymentCapsOverpayment(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	debt := createTestDebt(t, svc, "100")

	result, err := svc.RecordPayment(ctx, debt.ID, d("250"), time.Time{})
	require.NoError(t, err)
	require.True(t, result.RemainingAmount.IsZero())
	require.Equal(t, StatusPaid, result.Status)

	// Excess is discarded, not tracked as credit.
	stored := repo.debts[debt.ID]
	require.True(t, stored.PaidAmount.Equal(d("100")))
}

func TestRecordPaymentRejectsClosedDebt(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	paid := createTestDebt(t, svc, "100")
	_, err := svc.RecordPayment(ctx, paid.ID, d("100"), time.Time{})
	require.NoError(t, err)
	_, err = svc.RecordPayment(ctx, paid.ID, d("10"), time.Time{})
	require.ErrorIs(t, err, shared.ErrStateConflict)

	written := createTestDebt(t, svc, "100")
	require.NoError(t, svc.WriteOff(ctx, written.ID, "uncollectable", 1))
	_, err = svc.RecordPayment(ctx, written.ID, d("10"), time.Time{})
	require.ErrorIs(t, err, shared.ErrStateConflict)
}

func TestRecordPaymentValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	debt := createTestDebt(t, svc, "100")

	_, err := svc.RecordPayment(ctx, debt.ID, d("0"), time.Time{})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.RecordPayment(ctx, 9999, d("10"), time.Time{})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestEscalateBumpsReminderState(t *testing.T) {
	svc, repo, dispatcher := newTestService(t)
	ctx := context.Background()
	debt := createTestDebt(t, svc, "100")
	collector := int64(7)

	require.NoError(t, svc.Escalate(ctx, EscalateInput{DebtID: debt.ID, Stage: StageReminder, CollectorID: &collector}))
	require.NoError(t, svc.Escalate(ctx, EscalateInput{DebtID: debt.ID, Stage: StageWarning}))

	stored := repo.debts[debt.ID]
	require.Equal(t, StageWarning, stored.CollectionStage)
	require.Equal(t, 2, stored.ReminderCount)
	require.NotNil(t, stored.LastReminderDate)
	require.Equal(t, collector, *stored.AssignedCollectorID)
	require.Len(t, dispatcher.enqueued, 2)
	require.Equal(t, StageWarning, dispatcher.enqueued[1].CollectionStage)
}

func TestEscalateAllowsAnyStageMove(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	debt := createTestDebt(t, svc, "100")

	// Stage moves are not forced to be forward-only.
	require.NoError(t, svc.Escalate(ctx, EscalateInput{DebtID: debt.ID, Stage: StageLegal}))
	require.NoError(t, svc.Escalate(ctx, EscalateInput{DebtID: debt.ID, Stage: StageReminder}))
	require.Equal(t, StageReminder, repo.debts[debt.ID].CollectionStage)
}

func TestEscalateSurvivesReminderEnqueueFailure(t *testing.T) {
	svc, repo, dispatcher := newTestService(t)
	ctx := context.Background()
	debt := createTestDebt(t, svc, "100")
	dispatcher.fail = errors.New("queue unavailable")

	// The committed stage move must not be reported as a failure.
	require.NoError(t, svc.Escalate(ctx, EscalateInput{DebtID: debt.ID, Stage: StageWarning}))
	require.Equal(t, StageWarning, repo.debts[debt.ID].CollectionStage)
	require.Equal(t, 1, repo.debts[debt.ID].ReminderCount)
}

func TestEscalateRejectsUnknownStage(t *testing.T) {
	svc, _, _ := newTestService(t)
	err := svc.Escalate(context.Background(), EscalateInput{DebtID: 1, Stage: CollectionStage("nuclear")})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestWriteOffIsTerminal(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	debt := createTestDebt(t, svc, "1000")

	_, err := svc.RecordPayment(ctx, debt.ID, d("300"), time.Time{})
	require.NoError(t, err)

	require.NoError(t, svc.WriteOff(ctx, debt.ID, "bankruptcy", 1))

	stored := repo.debts[debt.ID]
	require.Equal(t, StatusWrittenOff, stored.Status)
	require.Equal(t, StageWrittenOff, stored.CollectionStage)

	// Write-off does not touch balances.
	require.True(t, stored.RemainingAmount.Equal(d("700")))

	require.ErrorIs(t, svc.WriteOff(ctx, debt.ID, "again", 1), shared.ErrStateConflict)
}

func TestWriteOffRequiresReason(t *testing.T) {
	svc, _, _ := newTestService(t)
	require.ErrorIs(t, svc.WriteOff(context.Background(), 1, "", 1), shared.ErrValidation)
}

func TestAdministrativeStatusMoves(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	disputed := createTestDebt(t, svc, "100")
	require.NoError(t, svc.MarkDisputed(ctx, disputed.ID))
	require.Equal(t, StatusDisputed, repo.debts[disputed.ID].Status)
	// Amounts untouched by administrative moves.
	require.True(t, repo.debts[disputed.ID].RemainingAmount.Equal(d("100")))

	collected := createTestDebt(t, svc, "200")
	require.NoError(t, svc.SendToCollection(ctx, collected.ID))
	require.Equal(t, StatusInCollection, repo.debts[collected.ID].Status)
}

func TestAbsorbChargeRaisesBothBalances(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	debt := createTestDebt(t, svc, "1000")
	_, err := svc.RecordPayment(ctx, debt.ID, d("400"), time.Time{})
	require.NoError(t, err)

	updated, err := svc.AbsorbCharge(ctx, debt.ID, d("50"))
	require.NoError(t, err)
	require.True(t, updated.OriginalAmount.Equal(d("1050")))
	require.True(t, updated.RemainingAmount.Equal(d("650")))
	require.True(t, updated.PaidAmount.Equal(d("400")))
}

func TestAbsorbChargeRejectsClosedDebt(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	debt := createTestDebt(t, svc, "100")
	require.NoError(t, svc.WriteOff(ctx, debt.ID, "uncollectable", 1))

	_, err := svc.AbsorbCharge(ctx, debt.ID, d("10"))
	require.ErrorIs(t, err, shared.ErrStateConflict)

	_, err = svc.AbsorbCharge(ctx, debt.ID, d("0"))
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCustomerOutstanding(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	createTestDebt(t, svc, "100")
	second := createTestDebt(t, svc, "250.50")
	_, err := svc.RecordPayment(ctx, second.ID, d("50.50"), time.Time{})
	require.NoError(t, err)

	closed := createTestDebt(t, svc, "75")
	require.NoError(t, svc.WriteOff(ctx, closed.ID, "gone", 1))

	total, err := svc.CustomerOutstanding(ctx, 42)
	require.NoError(t, err)
	require.True(t, total.Equal(d("300")), "got %s", total)
}
