package memoryengine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/goldenoaks/circulation-go/circulation"
)

// txMarker marks a context as running inside an open transaction, so store
// methods skip their own locking while the transaction holds the write lock.
type txMarker struct{}

// Storage is an in-memory implementation of circulation.Storage,
// circulation.MemberLookup, and circulation.JournalStore.
// The zero value is not usable; create instances with NewStorage.
type Storage struct {
	mu      sync.RWMutex
	copies  map[uuid.UUID]circulation.Copy
	loans   map[uuid.UUID]circulation.Loan
	fines   map[uuid.UUID]circulation.Fine
	members map[uuid.UUID]struct{}
	journal []circulation.JournalEntry
}

// NewStorage creates an empty in-memory storage engine.
func NewStorage() *Storage {
	return &Storage{
		copies:  make(map[uuid.UUID]circulation.Copy),
		loans:   make(map[uuid.UUID]circulation.Loan),
		fines:   make(map[uuid.UUID]circulation.Fine),
		members: make(map[uuid.UUID]struct{}),
	}
}

// snapshot captures the full state for transaction rollback. Entity values
// are plain structs that are never mutated through their pointer fields, so
// shallow map copies are sufficient.
type snapshot struct {
	copies  map[uuid.UUID]circulation.Copy
	loans   map[uuid.UUID]circulation.Loan
	fines   map[uuid.UUID]circulation.Fine
	journal []circulation.JournalEntry
}

func (s *Storage) takeSnapshot() snapshot {
	snap := snapshot{
		copies:  make(map[uuid.UUID]circulation.Copy, len(s.copies)),
		loans:   make(map[uuid.UUID]circulation.Loan, len(s.loans)),
		fines:   make(map[uuid.UUID]circulation.Fine, len(s.fines)),
		journal: s.journal,
	}

	for id, copy := range s.copies {
		snap.copies[id] = copy
	}

	for id, loan := range s.loans {
		snap.loans[id] = loan
	}

	for id, fine := range s.fines {
		snap.fines[id] = fine
	}

	return snap
}

func (s *Storage) restoreSnapshot(snap snapshot) {
	s.copies = snap.copies
	s.loans = snap.loans
	s.fines = snap.fines
	s.journal = snap.journal
}

// InTransaction runs fn under the engine's write lock. When fn returns an
// error, or ctx was cancelled before commit, the state is restored to the
// pre-transaction snapshot and no write is observable.
func (s *Storage) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.takeSnapshot()

	err := fn(context.WithValue(ctx, txMarker{}, true))
	if err == nil {
		err = ctx.Err()
	}

	if err != nil {
		s.restoreSnapshot(snap)
		return err
	}

	return nil
}

func inTransaction(ctx context.Context) bool {
	marked, ok := ctx.Value(txMarker{}).(bool)
	return ok && marked
}

// readLock acquires the read lock unless the context already runs inside a
// transaction holding the write lock. Returns the matching unlock func.
func (s *Storage) readLock(ctx context.Context) func() {
	if inTransaction(ctx) {
		return func() {}
	}

	s.mu.RLock()

	return s.mu.RUnlock
}

// writeLock is like readLock but exclusive.
func (s *Storage) writeLock(ctx context.Context) func() {
	if inTransaction(ctx) {
		return func() {}
	}

	s.mu.Lock()

	return s.mu.Unlock
}

/***** seeding helpers (cataloguing and member registration are external) *****/

// AddCopy seeds a copy into the engine.
func (s *Storage) AddCopy(copy circulation.Copy) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.copies[copy.CopyID] = copy
}

// AddMember seeds a registered member id into the engine.
func (s *Storage) AddMember(memberID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.members[memberID] = struct{}{}
}

/***** circulation.MemberLookup *****/

// MemberExists reports whether the member id was seeded.
func (s *Storage) MemberExists(ctx context.Context, memberID uuid.UUID) (bool, error) {
	defer s.readLock(ctx)()

	_, ok := s.members[memberID]

	return ok, nil
}

/***** circulation.CopyStore *****/

// GetCopy returns the copy or nil when the id does not resolve.
func (s *Storage) GetCopy(ctx context.Context, copyID uuid.UUID) (*circulation.Copy, error) {
	defer s.readLock(ctx)()

	copy, ok := s.copies[copyID]
	if !ok {
		return nil, nil
	}

	return &copy, nil
}

// GetCopyByBarcode returns the copy or nil when the barcode does not resolve.
func (s *Storage) GetCopyByBarcode(ctx context.Context, barcode circulation.BarcodeString) (*circulation.Copy, error) {
	defer s.readLock(ctx)()

	for _, copy := range s.copies {
		if copy.Barcode == barcode {
			found := copy
			return &found, nil
		}
	}

	return nil, nil
}

// SetCopyStatus persists a new status for the copy.
func (s *Storage) SetCopyStatus(ctx context.Context, copyID uuid.UUID, status circulation.CopyStatus) error {
	defer s.writeLock(ctx)()

	copy, ok := s.copies[copyID]
	if !ok {
		return fmt.Errorf("copy %s: %w", copyID, circulation.ErrNotFound)
	}

	copy.Status = status
	s.copies[copyID] = copy

	return nil
}

/***** circulation.LoanStore *****/

// InsertLoan records a newly opened loan, defending the one-open-loan-per-copy
// invariant.
func (s *Storage) InsertLoan(ctx context.Context, loan circulation.Loan) error {
	defer s.writeLock(ctx)()

	for _, existing := range s.loans {
		if existing.CopyID == loan.CopyID && existing.IsOpen() {
			return fmt.Errorf("copy %s: %w", loan.CopyID, circulation.ErrOpenLoanExists)
		}
	}

	s.loans[loan.LoanID] = loan

	return nil
}

// CloseLoan records the return time on an open loan.
func (s *Storage) CloseLoan(ctx context.Context, loanID uuid.UUID, returnedAt time.Time) error {
	defer s.writeLock(ctx)()

	loan, ok := s.loans[loanID]
	if !ok {
		return fmt.Errorf("loan %s: %w", loanID, circulation.ErrNotFound)
	}

	if !loan.IsOpen() {
		return fmt.Errorf("loan %s is already closed: %w", loanID, circulation.ErrInvalidState)
	}

	returned := circulation.ToTimestamp(returnedAt)
	loan.ReturnedAt = &returned
	s.loans[loanID] = loan

	return nil
}

// GetLoan returns the loan or nil when the id does not resolve.
func (s *Storage) GetLoan(ctx context.Context, loanID uuid.UUID) (*circulation.Loan, error) {
	defer s.readLock(ctx)()

	loan, ok := s.loans[loanID]
	if !ok {
		return nil, nil
	}

	return &loan, nil
}

// FindOpenLoanByCopy returns the single open loan for the copy, or nil.
func (s *Storage) FindOpenLoanByCopy(ctx context.Context, copyID uuid.UUID) (*circulation.Loan, error) {
	defer s.readLock(ctx)()

	for _, loan := range s.loans {
		if loan.CopyID == copyID && loan.IsOpen() {
			found := loan
			return &found, nil
		}
	}

	return nil, nil
}

// FindOpenLoansByMember returns all open loans held by the member.
func (s *Storage) FindOpenLoansByMember(ctx context.Context, memberID uuid.UUID) ([]circulation.Loan, error) {
	defer s.readLock(ctx)()

	var loans []circulation.Loan

	for _, loan := range s.loans {
		if loan.MemberID == memberID && loan.IsOpen() {
			loans = append(loans, loan)
		}
	}

	return loans, nil
}

// FindOpenOverdueLoans returns all open loans with DueAt before asOf.
func (s *Storage) FindOpenOverdueLoans(ctx context.Context, asOf time.Time) ([]circulation.Loan, error) {
	defer s.readLock(ctx)()

	var loans []circulation.Loan

	for _, loan := range s.loans {
		if loan.IsOverdue(asOf) {
			loans = append(loans, loan)
		}
	}

	return loans, nil
}

/***** circulation.FineStore *****/

// GetFine returns the fine or nil when the id does not resolve.
func (s *Storage) GetFine(ctx context.Context, fineID uuid.UUID) (*circulation.Fine, error) {
	defer s.readLock(ctx)()

	fine, ok := s.fines[fineID]
	if !ok {
		return nil, nil
	}

	return &fine, nil
}

// GetFineByLoan returns the fine recorded for the loan, or nil.
func (s *Storage) GetFineByLoan(ctx context.Context, loanID uuid.UUID) (*circulation.Fine, error) {
	defer s.readLock(ctx)()

	for _, fine := range s.fines {
		if fine.LoanID == loanID {
			found := fine
			return &found, nil
		}
	}

	return nil, nil
}

// InsertFine records a newly created fine, defending the
// one-pending-fine-per-loan invariant.
func (s *Storage) InsertFine(ctx context.Context, fine circulation.Fine) error {
	defer s.writeLock(ctx)()

	for _, existing := range s.fines {
		if existing.LoanID == fine.LoanID && existing.Status == circulation.FinePending {
			return fmt.Errorf("loan %s: %w", fine.LoanID, circulation.ErrPendingFineExists)
		}
	}

	s.fines[fine.FineID] = fine

	return nil
}

// UpdateFineStatus persists a settlement.
func (s *Storage) UpdateFineStatus(
	ctx context.Context,
	fineID uuid.UUID,
	status circulation.FineStatus,
	paidAt *time.Time,
) error {

	defer s.writeLock(ctx)()

	fine, ok := s.fines[fineID]
	if !ok {
		return fmt.Errorf("fine %s: %w", fineID, circulation.ErrNotFound)
	}

	fine.Status = status

	if paidAt != nil {
		paid := circulation.ToTimestamp(*paidAt)
		fine.PaidAt = &paid
	}

	s.fines[fineID] = fine

	return nil
}

// UpdateFineAmount persists a refreshed accrual on a fine.
func (s *Storage) UpdateFineAmount(ctx context.Context, fineID uuid.UUID, amount float64, assessedAt time.Time) error {
	defer s.writeLock(ctx)()

	fine, ok := s.fines[fineID]
	if !ok {
		return fmt.Errorf("fine %s: %w", fineID, circulation.ErrNotFound)
	}

	fine.Amount = amount
	fine.AssessedAt = circulation.ToTimestamp(assessedAt)
	s.fines[fineID] = fine

	return nil
}

// ListFinesByMember returns all fines whose loan belongs to the member.
func (s *Storage) ListFinesByMember(ctx context.Context, memberID uuid.UUID) ([]circulation.Fine, error) {
	defer s.readLock(ctx)()

	var fines []circulation.Fine

	for _, fine := range s.fines {
		loan, ok := s.loans[fine.LoanID]
		if ok && loan.MemberID == memberID {
			fines = append(fines, fine)
		}
	}

	return fines, nil
}

/***** circulation.JournalStore *****/

// AppendJournalEntry appends one entry to the in-memory journal.
func (s *Storage) AppendJournalEntry(ctx context.Context, entry circulation.JournalEntry) error {
	defer s.writeLock(ctx)()

	s.journal = append(s.journal, entry)

	return nil
}

// JournalEntries returns a copy of the recorded journal, oldest first.
func (s *Storage) JournalEntries() []circulation.JournalEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]circulation.JournalEntry, len(s.journal))
	copy(entries, s.journal)

	return entries
}
