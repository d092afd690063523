package debts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/voltgrid-erp/voltgrid/internal/platform/db"
)

// PgRepository provides PostgreSQL backed persistence for debt records.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const debtColumns = `id, customer_id, debt_type, reference_type, reference_id,
	original_amount, paid_amount, remaining_amount, due_date, status, collection_stage,
	assigned_collector_id, last_payment_date, last_reminder_date, reminder_count, notes,
	created_at, updated_at`

func scanDebt(row pgx.Row) (*DebtRecord, error) {
	var d DebtRecord
	var refType pgtype.Text
	var refID, collectorID pgtype.Int8
	var lastPayment, lastReminder pgtype.Timestamptz

	err := row.Scan(
		&d.ID, &d.CustomerID, &d.DebtType, &refType, &refID,
		&d.OriginalAmount, &d.PaidAmount, &d.RemainingAmount, &d.DueDate, &d.Status, &d.CollectionStage,
		&collectorID, &lastPayment, &lastReminder, &d.ReminderCount, &d.Notes,
		&d.CreatedAt, &d.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDebtNotFound
	}
	if err != nil {
		return nil, err
	}

	if refType.Valid {
		d.ReferenceType = &refType.String
	}
	if refID.Valid {
		d.ReferenceID = &refID.Int64
	}
	if collectorID.Valid {
		d.AssignedCollectorID = &collectorID.Int64
	}
	if lastPayment.Valid {
		d.LastPaymentDate = &lastPayment.Time
	}
	if lastReminder.Valid {
		d.LastReminderDate = &lastReminder.Time
	}
	return &d, nil
}

// CreateDebt inserts a new debt record with the full amount outstanding.
func (r *PgRepository) CreateDebt(ctx context.Context, input CreateDebtInput) (*DebtRecord, error) {
	query := `
		INSERT INTO debt_records (
			customer_id, debt_type, reference_type, reference_id,
			original_amount, paid_amount, remaining_amount, due_date,
			status, collection_stage, reminder_count, notes, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, 0, $5, $6, $7, $8, 0, $9, NOW(), NOW())
		RETURNING id, created_at, updated_at`

	var refType pgtype.Text
	if input.ReferenceType != nil {
		refType = pgtype.Text{String: *input.ReferenceType, Valid: true}
	}
	var refID pgtype.Int8
	if input.ReferenceID != nil {
		refID = pgtype.Int8{Int64: *input.ReferenceID, Valid: true}
	}

	debt := DebtRecord{
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
	}
	err := r.pool.QueryRow(ctx, query,
		input.CustomerID, input.DebtType, refType, refID,
		input.OriginalAmount, input.DueDate, StatusActive, StageNormal, input.Notes,
	).Scan(&debt.ID, &debt.CreatedAt, &debt.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &debt, nil
}

// GetDebt retrieves one debt record by id.
func (r *PgRepository) GetDebt(ctx context.Context, id int64) (*DebtRecord, error) {
	query := `SELECT ` + debtColumns + ` FROM debt_records WHERE id = $1`
	return scanDebt(r.pool.QueryRow(ctx, query, id))
}

// ListDebts returns debt records with optional filtering.
func (r *PgRepository) ListDebts(ctx context.Context, req ListDebtsRequest) ([]DebtRecord, error) {
	query := `SELECT ` + debtColumns + ` FROM debt_records WHERE 1=1`
	args := []any{}
	argNum := 1

	if req.CustomerID > 0 {
		query += fmt.Sprintf(" AND customer_id = $%d", argNum)
		args = append(args, req.CustomerID)
		argNum++
	}
	if req.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argNum)
		args = append(args, string(req.Status))
		argNum++
	}
	if req.Stage != "" {
		query += fmt.Sprintf(" AND collection_stage = $%d", argNum)
		args = append(args, string(req.Stage))
		argNum++
	}

	query += " ORDER BY due_date, id"

	if req.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argNum)
		args = append(args, req.Limit)
		argNum++
	}
	if req.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argNum)
		args = append(args, req.Offset)
	}

	return r.queryDebts(ctx, query, args...)
}

// ListOverdue returns open debts past their due date.
func (r *PgRepository) ListOverdue(ctx context.Context, asOf time.Time) ([]DebtRecord, error) {
	query := `SELECT ` + debtColumns + ` FROM debt_records
		WHERE due_date < $1 AND status IN ('active', 'partially_paid', 'in_collection')
		ORDER BY due_date`
	return r.queryDebts(ctx, query, asOf)
}

func (r *PgRepository) queryDebts(ctx context.Context, query string, args ...any) ([]DebtRecord, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DebtRecord
	for rows.Next() {
		d, err := scanDebt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// CountDebts returns the number of records matching the filter.
func (r *PgRepository) CountDebts(ctx context.Context, req ListDebtsRequest) (int, error) {
	query := `SELECT COUNT(*) FROM debt_records WHERE 1=1`
	args := []any{}
	argNum := 1

	if req.CustomerID > 0 {
		query += fmt.Sprintf(" AND customer_id = $%d", argNum)
		args = append(args, req.CustomerID)
		argNum++
	}
	if req.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argNum)
		args = append(args, string(req.Status))
		argNum++
	}
	if req.Stage != "" {
		query += fmt.Sprintf(" AND collection_stage = $%d", argNum)
		args = append(args, string(req.Stage))
	}

	var count int
	err := r.pool.QueryRow(ctx, query, args...).Scan(&count)
	return count, err
}

// CustomerOutstanding sums remaining amounts across a customer's open debts.
func (r *PgRepository) CustomerOutstanding(ctx context.Context, customerID int64) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(remaining_amount), 0)
		FROM debt_records
		WHERE customer_id = $1 AND status NOT IN ('paid', 'written_off')`,
		customerID,
	).Scan(&total)
	return total, err
}

// WithTx wraps callback in a repeatable-read transaction.
func (r *PgRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

type txRepo struct {
	tx pgx.Tx
}

// GetDebtForUpdate loads a debt row with a row lock.
func (t *txRepo) GetDebtForUpdate(ctx context.Context, id int64) (*DebtRecord, error) {
	query := `SELECT ` + debtColumns + ` FROM debt_records WHERE id = $1 FOR UPDATE`
	return scanDebt(t.tx.QueryRow(ctx, query, id))
}

// UpdateBalances writes a payment application.
func (t *txRepo) UpdateBalances(ctx context.Context, id int64, paid, remaining decimal.Decimal, status DebtStatus, paidAt time.Time) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE debt_records
		SET paid_amount = $2, remaining_amount = $3, status = $4, last_payment_date = $5, updated_at = NOW()
		WHERE id = $1`,
		id, paid, remaining, status, paidAt)
	return err
}

// AddCharge raises the original and remaining balances by an absorbed charge.
func (t *txRepo) AddCharge(ctx context.Context, id int64, original, remaining decimal.Decimal) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE debt_records
		SET original_amount = $2, remaining_amount = $3, updated_at = NOW()
		WHERE id = $1`,
		id, original, remaining)
	return err
}

// UpdateStage records a collection-stage move. The reminder counter increment
// happens in SQL so concurrent escalations never lose counts.
func (t *txRepo) UpdateStage(ctx context.Context, id int64, stage CollectionStage, collectorID *int64, reminderAt time.Time) error {
	var collector pgtype.Int8
	if collectorID != nil {
		collector = pgtype.Int8{Int64: *collectorID, Valid: true}
	}
	_, err := t.tx.Exec(ctx, `
		UPDATE debt_records
		SET collection_stage = $2,
			assigned_collector_id = COALESCE($3, assigned_collector_id),
			reminder_count = reminder_count + 1,
			last_reminder_date = $4,
			updated_at = NOW()
		WHERE id = $1`,
		id, stage, collector, reminderAt)
	return err
}

// UpdateStatus writes a status/stage pair.
func (t *txRepo) UpdateStatus(ctx context.Context, id int64, status DebtStatus, stage CollectionStage) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE debt_records
		SET status = $2, collection_stage = $3, updated_at = NOW()
		WHERE id = $1`,
		id, status, stage)
	return err
}
