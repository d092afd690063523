package penalties

import (
	"time"

	"github.com/shopspring/decimal"
)

// PenaltyType categorises what the charge is for.
type PenaltyType string

const (
	PenaltyLateFee         PenaltyType = "late_fee"
	PenaltyInterest        PenaltyType = "interest"
	PenaltyReconnectionFee PenaltyType = "reconnection_fee"
	PenaltyLegalFee        PenaltyType = "legal_fee"
	PenaltyOther           PenaltyType = "other"
)

// Valid reports whether the penalty type is known.
func (t PenaltyType) Valid() bool {
	switch t {
	case PenaltyLateFee, PenaltyInterest, PenaltyReconnectionFee, PenaltyLegalFee, PenaltyOther:
		return true
	}
	return false
}

// CalculationType selects the charge formula.
type CalculationType string

const (
	// CalcFixed charges the rate as a flat amount.
	CalcFixed CalculationType = "fixed"
	// CalcPercentage charges rate percent of the base amount.
	CalcPercentage CalculationType = "percentage"
	// CalcDailyRate charges rate percent of the base per overdue day.
	CalcDailyRate CalculationType = "daily_rate"
)

// Valid reports whether the calculation type is known.
func (t CalculationType) Valid() bool {
	switch t {
	case CalcFixed, CalcPercentage, CalcDailyRate:
		return true
	}
	return false
}

// PenaltyStatus enumerates penalty lifecycle states.
type PenaltyStatus string

const (
	PenaltyPending PenaltyStatus = "pending"
	PenaltyApplied PenaltyStatus = "applied"
	PenaltyWaived  PenaltyStatus = "waived"
	PenaltyPaid    PenaltyStatus = "paid"
)

// Open reports whether the penalty can still be waived or settled.
func (s PenaltyStatus) Open() bool {
	return s == PenaltyPending || s == PenaltyApplied
}

// Penalty is a charge assessed against a customer, optionally tied to a debt
// or invoice. The calculated amount is frozen at assessment time and never
// recalculated afterwards.
type Penalty struct {
	ID               int64
	CustomerID       int64
	DebtRecordID     *int64
	InvoiceID        *int64
	PenaltyType      PenaltyType
	CalculationType  CalculationType
	BaseAmount       decimal.Decimal
	Rate             decimal.Decimal
	DaysOverdue      int
	CalculatedAmount decimal.Decimal
	Reason           string
	Status           PenaltyStatus
	WaivedBy         *int64
	WaivedAt         *time.Time
	WaiverReason     *string
	AppliedDate      time.Time
	CreatedAt        time.Time
}

// ApplyPenaltyInput carries fields for penalty assessment.
type ApplyPenaltyInput struct {
	CustomerID      int64
	DebtRecordID    *int64
	InvoiceID       *int64
	PenaltyType     PenaltyType
	CalculationType CalculationType
	BaseAmount      decimal.Decimal
	Rate            decimal.Decimal
	DaysOverdue     int
	Reason          string
	ActorID         int64
}
