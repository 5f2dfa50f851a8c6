package circulation

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// MemberLookup resolves whether a member id refers to a registered member.
// Member profiles themselves are owned by an external collaborator.
type MemberLookup interface {
	MemberExists(ctx context.Context, memberID uuid.UUID) (bool, error)
}

// CopyStore provides access to physical copies. The coordinator is the sole
// mutator of Copy.Status; no other component may bypass the state machine.
type CopyStore interface {
	// GetCopy returns the copy or nil when the id does not resolve.
	GetCopy(ctx context.Context, copyID uuid.UUID) (*Copy, error)

	// GetCopyByBarcode returns the copy or nil when the barcode does not resolve.
	GetCopyByBarcode(ctx context.Context, barcode BarcodeString) (*Copy, error)

	// SetCopyStatus persists a new status for the copy.
	SetCopyStatus(ctx context.Context, copyID uuid.UUID, status CopyStatus) error
}

// LoanStore is the append-mostly ledger of borrow/return events and the
// source of truth for which copies are out and to whom.
type LoanStore interface {
	// InsertLoan records a newly opened loan. It fails with ErrOpenLoanExists
	// when the copy already has an open loan.
	InsertLoan(ctx context.Context, loan Loan) error

	// CloseLoan records the return time on an open loan. It fails with
	// ErrInvalidState when the loan is already closed.
	CloseLoan(ctx context.Context, loanID uuid.UUID, returnedAt time.Time) error

	// GetLoan returns the loan or nil when the id does not resolve.
	GetLoan(ctx context.Context, loanID uuid.UUID) (*Loan, error)

	// FindOpenLoanByCopy returns the single open loan for the copy, or nil.
	FindOpenLoanByCopy(ctx context.Context, copyID uuid.UUID) (*Loan, error)

	// FindOpenLoansByMember returns all open loans held by the member.
	FindOpenLoansByMember(ctx context.Context, memberID uuid.UUID) ([]Loan, error)

	// FindOpenOverdueLoans returns all open loans with DueAt before asOf.
	FindOpenOverdueLoans(ctx context.Context, asOf time.Time) ([]Loan, error)
}

// FineStore provides access to fine records.
type FineStore interface {
	// GetFine returns the fine or nil when the id does not resolve.
	GetFine(ctx context.Context, fineID uuid.UUID) (*Fine, error)

	// GetFineByLoan returns the fine recorded for the loan, or nil.
	// The engine records at most one fine per loan.
	GetFineByLoan(ctx context.Context, loanID uuid.UUID) (*Fine, error)

	// InsertFine records a newly created fine. It fails with
	// ErrPendingFineExists when the loan already has a pending fine.
	InsertFine(ctx context.Context, fine Fine) error

	// UpdateFineStatus persists a settlement. paidAt is nil for waivers.
	UpdateFineStatus(ctx context.Context, fineID uuid.UUID, status FineStatus, paidAt *time.Time) error

	// UpdateFineAmount persists a refreshed accrual on a pending fine.
	UpdateFineAmount(ctx context.Context, fineID uuid.UUID, amount float64, assessedAt time.Time) error

	// ListFinesByMember returns all fines whose loan belongs to the member.
	ListFinesByMember(ctx context.Context, memberID uuid.UUID) ([]Fine, error)
}

// JournalStore records the append-only history of circulation events.
type JournalStore interface {
	AppendJournalEntry(ctx context.Context, entry JournalEntry) error
}

// Transactor brackets a set of store calls into one atomic unit. The closure's
// writes become visible all at once on commit; when the closure returns an
// error or ctx is cancelled before commit, none of them are applied.
type Transactor interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Storage is the full set of store capabilities the coordinator needs from a
// backing engine. Both shipped engines implement it on a single type.
type Storage interface {
	Transactor
	CopyStore
	LoanStore
	FineStore
}
