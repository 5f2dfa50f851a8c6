package circulation

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Loan represents one copy being lent to one member for a bounded period.
// A loan is open while ReturnedAt is nil and closed once it is set; a closed
// loan is terminal and is never reopened by normal operation.
type Loan struct {
	LoanID     uuid.UUID
	MemberID   uuid.UUID
	CopyID     uuid.UUID
	IssuedAt   Timestamp
	DueAt      Timestamp
	ReturnedAt *Timestamp
}

// BuildLoan creates a new open Loan issued at the given time, due after the
// given loan period.
func BuildLoan(memberID uuid.UUID, copyID uuid.UUID, issuedAt time.Time, loanPeriod time.Duration) Loan {
	issued := ToTimestamp(issuedAt)

	return Loan{
		LoanID:   uuid.New(),
		MemberID: memberID,
		CopyID:   copyID,
		IssuedAt: issued,
		DueAt:    issued.Add(loanPeriod),
	}
}

// IsOpen reports whether the loan has no recorded return.
func (l Loan) IsOpen() bool {
	return l.ReturnedAt == nil
}

// IsOverdue reports whether the loan is open and past due at the given time.
func (l Loan) IsOverdue(asOf time.Time) bool {
	return l.IsOpen() && l.DueAt.Before(ToTimestamp(asOf))
}

// Close records the return of the copy and closes the loan.
// Closing an already closed loan is rejected with ErrInvalidState.
func (l Loan) Close(returnedAt time.Time) (Loan, error) {
	if !l.IsOpen() {
		return Loan{}, fmt.Errorf("loan %s is already closed: %w", l.LoanID, ErrInvalidState)
	}

	returned := ToTimestamp(returnedAt)
	l.ReturnedAt = &returned

	return l, nil
}
