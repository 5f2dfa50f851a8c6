package circulation

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// FineStatus represents the settlement status of a fine.
type FineStatus string

// A fine starts PENDING and is settled exactly once, by payment or waiver.
// Both settled statuses are terminal.
const (
	FinePending FineStatus = "PENDING"
	FinePaid    FineStatus = "PAID"
	FineWaived  FineStatus = "WAIVED"
)

// IsValid reports whether the status is one of the defined fine statuses.
func (s FineStatus) IsValid() bool {
	switch s {
	case FinePending, FinePaid, FineWaived:
		return true
	default:
		return false
	}
}

// Fine represents the monetary penalty assessed against one overdue loan.
type Fine struct {
	FineID     uuid.UUID
	LoanID     uuid.UUID
	Amount     float64
	Status     FineStatus
	AssessedAt Timestamp
	PaidAt     *Timestamp
}

// BuildPendingFine creates a new pending Fine for a loan.
func BuildPendingFine(loanID uuid.UUID, amount float64, assessedAt time.Time) Fine {
	return Fine{
		FineID:     uuid.New(),
		LoanID:     loanID,
		Amount:     amount,
		Status:     FinePending,
		AssessedAt: ToTimestamp(assessedAt),
	}
}

// Pay settles a pending fine as paid at the given time.
func (f Fine) Pay(paidAt time.Time) (Fine, error) {
	if f.Status != FinePending {
		return Fine{}, fmt.Errorf("fine %s is %s, not %s: %w", f.FineID, f.Status, FinePending, ErrInvalidState)
	}

	paid := ToTimestamp(paidAt)
	f.Status = FinePaid
	f.PaidAt = &paid

	return f, nil
}

// Waive settles a pending fine as waived. PaidAt stays absent.
func (f Fine) Waive() (Fine, error) {
	if f.Status != FinePending {
		return Fine{}, fmt.Errorf("fine %s is %s, not %s: %w", f.FineID, f.Status, FinePending, ErrInvalidState)
	}

	f.Status = FineWaived

	return f, nil
}
