package penalties

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

// PgRepository provides PostgreSQL backed persistence for penalties.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const penaltyColumns = `id, customer_id, debt_record_id, invoice_id, penalty_type,
	calculation_type, base_amount, rate, days_overdue, calculated_amount, reason,
	status, waived_by, waived_at, waiver_reason, applied_date, created_at`

func scanPenalty(row pgx.Row) (*Penalty, error) {
	var p Penalty
	var debtRecordID, invoiceID, waivedBy pgtype.Int8
	var waivedAt pgtype.Timestamptz
	var waiverReason pgtype.Text

	err := row.Scan(
		&p.ID, &p.CustomerID, &debtRecordID, &invoiceID, &p.PenaltyType,
		&p.CalculationType, &p.BaseAmount, &p.Rate, &p.DaysOverdue, &p.CalculatedAmount, &p.Reason,
		&p.Status, &waivedBy, &waivedAt, &waiverReason, &p.AppliedDate, &p.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPenaltyNotFound
	}
	if err != nil {
		return nil, err
	}

	if debtRecordID.Valid {
		p.DebtRecordID = &debtRecordID.Int64
	}
	if invoiceID.Valid {
		p.InvoiceID = &invoiceID.Int64
	}
	if waivedBy.Valid {
		p.WaivedBy = &waivedBy.Int64
	}
	if waivedAt.Valid {
		p.WaivedAt = &waivedAt.Time
	}
	if waiverReason.Valid {
		p.WaiverReason = &waiverReason.String
	}
	return &p, nil
}

// CreatePenalty inserts a new penalty and returns the stored row.
func (r *PgRepository) CreatePenalty(ctx context.Context, p Penalty) (*Penalty, error) {
	query := `
		INSERT INTO penalties (
			customer_id, debt_record_id, invoice_id, penalty_type, calculation_type,
			base_amount, rate, days_overdue, calculated_amount, reason, status,
			applied_date, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
		RETURNING ` + penaltyColumns
	return scanPenalty(r.pool.QueryRow(ctx, query,
		p.CustomerID, p.DebtRecordID, p.InvoiceID, p.PenaltyType, p.CalculationType,
		p.BaseAmount, p.Rate, p.DaysOverdue, p.CalculatedAmount, p.Reason, p.Status,
		p.AppliedDate))
}

// GetPenalty retrieves one penalty by id.
func (r *PgRepository) GetPenalty(ctx context.Context, id int64) (*Penalty, error) {
	query := `SELECT ` + penaltyColumns + ` FROM penalties WHERE id = $1`
	return scanPenalty(r.pool.QueryRow(ctx, query, id))
}

// ListByDebt returns all penalties assessed against a debt.
func (r *PgRepository) ListByDebt(ctx context.Context, debtID int64) ([]Penalty, error) {
	query := `SELECT ` + penaltyColumns + ` FROM penalties WHERE debt_record_id = $1 ORDER BY applied_date DESC`
	return r.queryPenalties(ctx, query, debtID)
}

// ListByCustomer returns a customer's penalties, optionally filtered by status.
func (r *PgRepository) ListByCustomer(ctx context.Context, customerID int64, status PenaltyStatus) ([]Penalty, error) {
	query := `SELECT ` + penaltyColumns + ` FROM penalties WHERE customer_id = $1`
	args := []any{customerID}
	if status != "" {
		query += fmt.Sprintf(" AND status = $%d", len(args)+1)
		args = append(args, string(status))
	}
	query += " ORDER BY applied_date DESC"
	return r.queryPenalties(ctx, query, args...)
}

func (r *PgRepository) queryPenalties(ctx context.Context, query string, args ...any) ([]Penalty, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var penalties []Penalty
	for rows.Next() {
		p, err := scanPenalty(rows)
		if err != nil {
			return nil, err
		}
		penalties = append(penalties, *p)
	}
	return penalties, rows.Err()
}

// OpenTotal sums a customer's pending and applied penalty exposure.
func (r *PgRepository) OpenTotal(ctx context.Context, customerID int64) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(calculated_amount), 0) FROM penalties
		WHERE customer_id = $1 AND status IN ('pending', 'applied')`,
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

// GetPenaltyForUpdate loads a penalty row with a row lock.
func (t *txRepo) GetPenaltyForUpdate(ctx context.Context, id int64) (*Penalty, error) {
	query := `SELECT ` + penaltyColumns + ` FROM penalties WHERE id = $1 FOR UPDATE`
	return scanPenalty(t.tx.QueryRow(ctx, query, id))
}

// UpdateStatus writes a status transition with optional waiver attribution.
func (t *txRepo) UpdateStatus(ctx context.Context, id int64, status PenaltyStatus, waivedBy *int64, waivedAt *time.Time, waiverReason *string) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE penalties
		SET status = $2, waived_by = $3, waived_at = $4, waiver_reason = $5
		WHERE id = $1`,
		id, status, waivedBy, waivedAt, waiverReason)
	return err
}
