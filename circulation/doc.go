// Package circulation implements the lending core of a library system:
// the copy state machine, the loan ledger, fine accrual, and the
// coordinator that ties them together into atomic business operations.
//
// The package is storage-agnostic. All state lives behind the narrow
// store interfaces defined here (CopyStore, LoanStore, FineStore,
// MemberLookup, JournalStore) plus a Transactor that brackets every
// multi-entity write. Two engines ship with this module:
//
//   - circulation/memoryengine: map-backed, for tests and embedded use
//   - circulation/postgresengine: PostgreSQL with pluggable adapters
//
// Common usage pattern:
//
//	storage := memoryengine.NewStorage()
//	coordinator, err := circulation.NewCoordinator(
//		storage,
//		storage,
//		circulation.DefaultPolicy(),
//		circulation.WithLogger(logger),
//	)
//	if err != nil {
//		...
//	}
//
//	loan, err := coordinator.Checkout(ctx, memberID, copyID, time.Now())
//	if err != nil {
//		...
//	}
//
// Every operation either commits all of its writes or none of them.
// Failures are reported through typed sentinel errors (ErrNotFound,
// ErrInvalidState, ErrInvalidPolicy, ErrStorageFailure) which callers
// inspect with errors.Is.
package circulation
