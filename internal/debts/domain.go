package debts

import (
	"time"

	"github.com/shopspring/decimal"
)

// DebtType enumerates the origin of an obligation.
type DebtType string

const (
	DebtTypeInvoice DebtType = "invoice"
	DebtTypeService DebtType = "service"
	DebtTypePenalty DebtType = "penalty"
	DebtTypeOther   DebtType = "other"
)

// Valid reports whether the debt type is a known value.
func (t DebtType) Valid() bool {
	switch t {
	case DebtTypeInvoice, DebtTypeService, DebtTypePenalty, DebtTypeOther:
		return true
	}
	return false
}

// DebtStatus enumerates payment statuses of a debt record.
type DebtStatus string

const (
	StatusActive        DebtStatus = "active"
	StatusPartiallyPaid DebtStatus = "partially_paid"
	StatusPaid          DebtStatus = "paid"
	StatusWrittenOff    DebtStatus = "written_off"
	StatusInCollection  DebtStatus = "in_collection"
	StatusDisputed      DebtStatus = "disputed"
)

// Terminal reports whether no further payments are accepted.
func (s DebtStatus) Terminal() bool {
	return s == StatusPaid || s == StatusWrittenOff
}

// CollectionStage enumerates the administrative escalation level, independent
// of payment status.
type CollectionStage string

const (
	StageNormal      CollectionStage = "normal"
	StageReminder    CollectionStage = "reminder"
	StageWarning     CollectionStage = "warning"
	StageFinalNotice CollectionStage = "final_notice"
	StageLegal       CollectionStage = "legal"
	StageWrittenOff  CollectionStage = "written_off"
)

// Valid reports whether the stage is a known value.
func (s CollectionStage) Valid() bool {
	switch s {
	case StageNormal, StageReminder, StageWarning, StageFinalNotice, StageLegal, StageWrittenOff:
		return true
	}
	return false
}

// DebtRecord is one outstanding obligation owed by a customer.
// Invariant: PaidAmount + RemainingAmount == OriginalAmount.
type DebtRecord struct {
	ID                  int64
	CustomerID          int64
	DebtType            DebtType
	ReferenceType       *string
	ReferenceID         *int64
	OriginalAmount      decimal.Decimal
	PaidAmount          decimal.Decimal
	RemainingAmount     decimal.Decimal
	DueDate             time.Time
	Status              DebtStatus
	CollectionStage     CollectionStage
	AssignedCollectorID *int64
	LastPaymentDate     *time.Time
	LastReminderDate    *time.Time
	ReminderCount       int
	Notes               string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// CreateDebtInput carries fields for debt creation.
type CreateDebtInput struct {
	CustomerID     int64
	DebtType       DebtType
	OriginalAmount decimal.Decimal
	DueDate        time.Time
	ReferenceType  *string
	ReferenceID    *int64
	Notes          string
}

// PaymentResult reports the ledger position after a payment.
type PaymentResult struct {
	RemainingAmount decimal.Decimal
	Status          DebtStatus
}

// EscalateInput carries fields for a collection-stage move.
type EscalateInput struct {
	DebtID      int64
	Stage       CollectionStage
	CollectorID *int64
	Notes       string
	ActorID     int64
}

// ListDebtsRequest filters debt listings.
type ListDebtsRequest struct {
	CustomerID int64
	Status     DebtStatus
	Stage      CollectionStage
	Limit      int
	Offset     int
}
