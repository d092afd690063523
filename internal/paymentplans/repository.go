package paymentplans

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

// PgRepository provides PostgreSQL backed persistence for payment plans.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const planColumns = `id, customer_id, plan_name, total_amount, paid_amount, remaining_amount,
	number_of_installments, installment_amount, frequency, start_date, end_date,
	next_payment_date, interest_rate, late_fee_percent, status, approved_by, approved_at,
	created_at, updated_at`

func scanPlan(row pgx.Row) (*PaymentPlan, error) {
	var p PaymentPlan
	var nextPayment, approvedAt pgtype.Timestamptz
	var approvedBy pgtype.Int8

	err := row.Scan(
		&p.ID, &p.CustomerID, &p.PlanName, &p.TotalAmount, &p.PaidAmount, &p.RemainingAmount,
		&p.NumberOfInstallments, &p.InstallmentAmount, &p.Frequency, &p.StartDate, &p.EndDate,
		&nextPayment, &p.InterestRate, &p.LateFeePercent, &p.Status, &approvedBy, &approvedAt,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPlanNotFound
	}
	if err != nil {
		return nil, err
	}

	if nextPayment.Valid {
		p.NextPaymentDate = &nextPayment.Time
	}
	if approvedBy.Valid {
		p.ApprovedBy = &approvedBy.Int64
	}
	if approvedAt.Valid {
		p.ApprovedAt = &approvedAt.Time
	}
	return &p, nil
}

const installmentColumns = `id, plan_id, installment_number, due_date, amount,
	principal_amount, interest_amount, paid_amount, paid_date, status, payment_id, created_at`

func scanInstallment(row pgx.Row) (*Installment, error) {
	var inst Installment
	var paidDate pgtype.Timestamptz
	var paymentID pgtype.Text

	err := row.Scan(
		&inst.ID, &inst.PlanID, &inst.InstallmentNumber, &inst.DueDate, &inst.Amount,
		&inst.PrincipalAmount, &inst.InterestAmount, &inst.PaidAmount, &paidDate, &inst.Status,
		&paymentID, &inst.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrInstallmentNotFound
	}
	if err != nil {
		return nil, err
	}

	if paidDate.Valid {
		inst.PaidDate = &paidDate.Time
	}
	if paymentID.Valid {
		inst.PaymentID = &paymentID.String
	}
	return &inst, nil
}

// GetPlan retrieves one plan by id.
func (r *PgRepository) GetPlan(ctx context.Context, id int64) (*PaymentPlan, error) {
	query := `SELECT ` + planColumns + ` FROM payment_plans WHERE id = $1`
	return scanPlan(r.pool.QueryRow(ctx, query, id))
}

// GetPlanWithInstallments retrieves a plan with its schedule sorted by number.
func (r *PgRepository) GetPlanWithInstallments(ctx context.Context, id int64) (*PlanWithInstallments, error) {
	plan, err := r.GetPlan(ctx, id)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `SELECT `+installmentColumns+`
		FROM plan_installments WHERE plan_id = $1 ORDER BY installment_number`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var installments []Installment
	for rows.Next() {
		inst, err := scanInstallment(rows)
		if err != nil {
			return nil, err
		}
		installments = append(installments, *inst)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &PlanWithInstallments{PaymentPlan: *plan, Installments: installments}, nil
}

// ListPlans returns plans for a customer, optionally filtered by status.
func (r *PgRepository) ListPlans(ctx context.Context, customerID int64, status PlanStatus) ([]PaymentPlan, error) {
	query := `SELECT ` + planColumns + ` FROM payment_plans WHERE 1=1`
	args := []any{}
	argNum := 1

	if customerID > 0 {
		query += fmt.Sprintf(" AND customer_id = $%d", argNum)
		args = append(args, customerID)
		argNum++
	}
	if status != "" {
		query += fmt.Sprintf(" AND status = $%d", argNum)
		args = append(args, string(status))
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []PaymentPlan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, *p)
	}
	return plans, rows.Err()
}

// MarkOverdue flips pending/partial installments past due to overdue.
func (r *PgRepository) MarkOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE plan_installments
		SET status = 'overdue'
		WHERE due_date < $1 AND status IN ('pending', 'partial')`,
		asOf)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
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

// InsertPlan creates the plan row.
func (t *txRepo) InsertPlan(ctx context.Context, plan PaymentPlan) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO payment_plans (
			customer_id, plan_name, total_amount, paid_amount, remaining_amount,
			number_of_installments, installment_amount, frequency, start_date, end_date,
			next_payment_date, interest_rate, late_fee_percent, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW(), NOW())
		RETURNING id`,
		plan.CustomerID, plan.PlanName, plan.TotalAmount, plan.PaidAmount, plan.RemainingAmount,
		plan.NumberOfInstallments, plan.InstallmentAmount, plan.Frequency, plan.StartDate, plan.EndDate,
		plan.NextPaymentDate, plan.InterestRate, plan.LateFeePercent, plan.Status,
	).Scan(&id)
	return id, err
}

// InsertInstallment creates one installment row.
func (t *txRepo) InsertInstallment(ctx context.Context, inst Installment) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO plan_installments (
			plan_id, installment_number, due_date, amount, principal_amount,
			interest_amount, paid_amount, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		RETURNING id`,
		inst.PlanID, inst.InstallmentNumber, inst.DueDate, inst.Amount, inst.PrincipalAmount,
		inst.InterestAmount, inst.PaidAmount, inst.Status,
	).Scan(&id)
	return id, err
}

// GetPlanForUpdate loads a plan row with a row lock.
func (t *txRepo) GetPlanForUpdate(ctx context.Context, id int64) (*PaymentPlan, error) {
	query := `SELECT ` + planColumns + ` FROM payment_plans WHERE id = $1 FOR UPDATE`
	return scanPlan(t.tx.QueryRow(ctx, query, id))
}

// GetInstallmentForUpdate loads an installment row with a row lock.
func (t *txRepo) GetInstallmentForUpdate(ctx context.Context, id int64) (*Installment, error) {
	query := `SELECT ` + installmentColumns + ` FROM plan_installments WHERE id = $1 FOR UPDATE`
	return scanInstallment(t.tx.QueryRow(ctx, query, id))
}

// UpdateInstallmentPayment writes a payment application to one installment.
func (t *txRepo) UpdateInstallmentPayment(ctx context.Context, id int64, paid decimal.Decimal, status InstallmentStatus, paidDate *time.Time, paymentID *string) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE plan_installments
		SET paid_amount = $2, status = $3, paid_date = $4, payment_id = $5
		WHERE id = $1`,
		id, paid, status, paidDate, paymentID)
	return err
}

// UpdatePlanTotals rolls installment payments up into the plan.
func (t *txRepo) UpdatePlanTotals(ctx context.Context, id int64, paid, remaining decimal.Decimal, status PlanStatus, nextPayment *time.Time) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE payment_plans
		SET paid_amount = $2, remaining_amount = $3, status = $4, next_payment_date = $5, updated_at = NOW()
		WHERE id = $1`,
		id, paid, remaining, status, nextPayment)
	return err
}

// UpdatePlanStatus writes a status transition.
func (t *txRepo) UpdatePlanStatus(ctx context.Context, id int64, status PlanStatus, approvedBy *int64, approvedAt *time.Time) error {
	var by pgtype.Int8
	if approvedBy != nil {
		by = pgtype.Int8{Int64: *approvedBy, Valid: true}
	}
	_, err := t.tx.Exec(ctx, `
		UPDATE payment_plans
		SET status = $2,
			approved_by = COALESCE($3, approved_by),
			approved_at = COALESCE($4, approved_at),
			updated_at = NOW()
		WHERE id = $1`,
		id, status, by, approvedAt)
	return err
}

// NextPendingDueDate returns the earliest due date still owed on the plan.
func (t *txRepo) NextPendingDueDate(ctx context.Context, planID int64) (*time.Time, error) {
	var due pgtype.Timestamptz
	err := t.tx.QueryRow(ctx, `
		SELECT MIN(due_date) FROM plan_installments
		WHERE plan_id = $1 AND status IN ('pending', 'partial', 'overdue')`,
		planID,
	).Scan(&due)
	if err != nil {
		return nil, err
	}
	if !due.Valid {
		return nil, nil
	}
	return &due.Time, nil
}
