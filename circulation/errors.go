package circulation

import (
	"errors"
)

// ErrNotFound is returned when a member, copy, loan, or fine id does not resolve.
var ErrNotFound = errors.New("entity not found")

// ErrInvalidState is returned when an operation targets an entity that is not
// in the state the operation requires (copy not available, loan already closed,
// fine already settled).
var ErrInvalidState = errors.New("entity is not in the required state")

// ErrInvalidPolicy is returned when a Policy carries a non-positive loan period
// or fine rate.
var ErrInvalidPolicy = errors.New("invalid circulation policy")

// ErrOpenLoanExists is returned by LoanStore.InsertLoan when the copy already
// has an open loan. It defends the one-open-loan-per-copy invariant even if
// the coordinator's own availability check races.
var ErrOpenLoanExists = errors.New("an open loan already exists for this copy")

// ErrPendingFineExists is returned by FineStore.InsertFine when the loan
// already has a pending fine.
var ErrPendingFineExists = errors.New("a pending fine already exists for this loan")

// ErrStorageFailure wraps I/O failures surfaced by store implementations.
// The engine never retries these; retry policy belongs to the caller.
var ErrStorageFailure = errors.New("storage operation failed")

// ErrNilStorage is returned by NewCoordinator when no storage is supplied.
var ErrNilStorage = errors.New("nil storage supplied")

// ErrNilMemberLookup is returned by NewCoordinator when no member lookup is supplied.
var ErrNilMemberLookup = errors.New("nil member lookup supplied")
