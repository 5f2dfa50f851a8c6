package circulation_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goldenoaks/circulation-go/circulation"
	"github.com/goldenoaks/circulation-go/circulation/memoryengine"
)

func Test_Checkout_Success_WhenCopyAvailableAndMemberRegistered(t *testing.T) {
	// arrange
	storage, coordinator := setupCoordinator(t)
	memberID := givenRegisteredMember(storage)
	copy := givenAvailableCopy(storage)
	now := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

	// act
	loan, err := coordinator.Checkout(context.Background(), memberID, copy.CopyID, now)

	// assert
	require.NoError(t, err)
	assert.Equal(t, memberID, loan.MemberID)
	assert.Equal(t, copy.CopyID, loan.CopyID)
	assert.Equal(t, circulation.ToTimestamp(now), loan.IssuedAt)
	assert.Equal(t, circulation.ToTimestamp(now).Add(coordinator.Policy().LoanPeriod), loan.DueAt)
	assert.Nil(t, loan.ReturnedAt)

	storedCopy, err := coordinator.GetCopy(context.Background(), copy.CopyID)
	require.NoError(t, err)
	assert.Equal(t, circulation.StatusOnLoan, storedCopy.Status)

	openLoan, err := coordinator.GetOpenLoanForCopy(context.Background(), copy.CopyID)
	require.NoError(t, err)
	require.NotNil(t, openLoan)
	assert.Equal(t, loan.LoanID, openLoan.LoanID)
}

func Test_Checkout_Fails_WhenMemberUnknown(t *testing.T) {
	// arrange
	storage, coordinator := setupCoordinator(t)
	copy := givenAvailableCopy(storage)

	// act
	_, err := coordinator.Checkout(context.Background(), uuid.New(), copy.CopyID, time.Now())

	// assert
	assert.ErrorIs(t, err, circulation.ErrNotFound)
	assertCopyStatusUnchanged(t, coordinator, copy.CopyID, circulation.StatusAvailable)
}

func Test_Checkout_Fails_WhenCopyUnknown(t *testing.T) {
	// arrange
	storage, coordinator := setupCoordinator(t)
	memberID := givenRegisteredMember(storage)

	// act
	_, err := coordinator.Checkout(context.Background(), memberID, uuid.New(), time.Now())

	// assert
	assert.ErrorIs(t, err, circulation.ErrNotFound)
}

func Test_Checkout_Fails_WhenCopyNotAvailable_AndChangesNothing(t *testing.T) {
	// arrange
	storage, coordinator := setupCoordinator(t)
	memberID := givenRegisteredMember(storage)

	for _, status := range []circulation.CopyStatus{
		circulation.StatusOnLoan,
		circulation.StatusReserved,
		circulation.StatusDamaged,
		circulation.StatusLost,
	} {
		copy := givenAvailableCopy(storage)
		copy.Status = status
		storage.AddCopy(copy)

		before, err := coordinator.GetCopy(context.Background(), copy.CopyID)
		require.NoError(t, err)

		// act
		_, err = coordinator.Checkout(context.Background(), memberID, copy.CopyID, time.Now())

		// assert - snapshot equality before/after
		assert.ErrorIs(t, err, circulation.ErrInvalidState)

		after, getErr := coordinator.GetCopy(context.Background(), copy.CopyID)
		require.NoError(t, getErr)
		assert.Equal(t, before, after)

		openLoan, loanErr := coordinator.GetOpenLoanForCopy(context.Background(), copy.CopyID)
		require.NoError(t, loanErr)
		assert.Nil(t, openLoan)
	}
}

func Test_Checkout_Fails_WhenLoanPeriodNotPositive(t *testing.T) {
	// arrange
	storage, coordinator := setupCoordinator(t)
	memberID := givenRegisteredMember(storage)
	copy := givenAvailableCopy(storage)

	// act
	_, err := coordinator.CheckoutForPeriod(context.Background(), memberID, copy.CopyID, time.Now(), 0)

	// assert
	assert.ErrorIs(t, err, circulation.ErrInvalidPolicy)
	assertCopyStatusUnchanged(t, coordinator, copy.CopyID, circulation.StatusAvailable)
}

func Test_Checkout_LeavesNoTrace_WhenContextCancelledBeforeCommit(t *testing.T) {
	// arrange
	storage, coordinator := setupCoordinator(t)
	memberID := givenRegisteredMember(storage)
	copy := givenAvailableCopy(storage)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// act
	_, err := coordinator.Checkout(ctx, memberID, copy.CopyID, time.Now())

	// assert
	assert.Error(t, err)
	assertCopyStatusUnchanged(t, coordinator, copy.CopyID, circulation.StatusAvailable)

	openLoan, loanErr := coordinator.GetOpenLoanForCopy(context.Background(), copy.CopyID)
	require.NoError(t, loanErr)
	assert.Nil(t, openLoan)
}

func Test_ReturnCopy_ClosesLoanAndFreesCopy(t *testing.T) {
	// arrange
	storage, coordinator := setupCoordinator(t)
	memberID := givenRegisteredMember(storage)
	copy := givenAvailableCopy(storage)
	issuedAt := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	returnedAt := issuedAt.Add(5 * 24 * time.Hour)

	loan, err := coordinator.Checkout(context.Background(), memberID, copy.CopyID, issuedAt)
	require.NoError(t, err)

	// act
	closed, err := coordinator.ReturnCopy(context.Background(), loan.LoanID, returnedAt)

	// assert
	require.NoError(t, err)
	require.NotNil(t, closed.ReturnedAt)
	assert.Equal(t, circulation.ToTimestamp(returnedAt), *closed.ReturnedAt)
	assertCopyStatusUnchanged(t, coordinator, copy.CopyID, circulation.StatusAvailable)
}

func Test_ReturnCopy_Fails_WhenLoanAlreadyClosed_AndChangesNothing(t *testing.T) {
	// arrange
	storage, coordinator := setupCoordinator(t)
	memberID := givenRegisteredMember(storage)
	copy := givenAvailableCopy(storage)
	now := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

	loan, err := coordinator.Checkout(context.Background(), memberID, copy.CopyID, now)
	require.NoError(t, err)

	_, err = coordinator.ReturnCopy(context.Background(), loan.LoanID, now.Add(24*time.Hour))
	require.NoError(t, err)

	// act
	_, err = coordinator.ReturnCopy(context.Background(), loan.LoanID, now.Add(48*time.Hour))

	// assert
	assert.ErrorIs(t, err, circulation.ErrInvalidState)

	stored, getErr := coordinator.GetLoan(context.Background(), loan.LoanID)
	require.NoError(t, getErr)
	assert.Equal(t, circulation.ToTimestamp(now.Add(24*time.Hour)), *stored.ReturnedAt)
}

func Test_ReturnCopy_Fails_WhenLoanUnknown(t *testing.T) {
	_, coordinator := setupCoordinator(t)

	_, err := coordinator.ReturnCopy(context.Background(), uuid.New(), time.Now())

	assert.ErrorIs(t, err, circulation.ErrNotFound)
}

func Test_AssessOverdueFines_CreatesPendingFines_ForOverdueLoansOnly(t *testing.T) {
	// arrange
	storage, coordinator := setupCoordinator(t)
	memberID := givenRegisteredMember(storage)
	overdueCopy := givenAvailableCopy(storage)
	onTimeCopy := givenAvailableCopy(storage)
	t0 := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

	overdueLoan, err := coordinator.Checkout(context.Background(), memberID, overdueCopy.CopyID, t0)
	require.NoError(t, err)

	_, err = coordinator.Checkout(context.Background(), memberID, onTimeCopy.CopyID, t0.Add(10*24*time.Hour))
	require.NoError(t, err)

	// act - 17 days after the first checkout: 3 full days overdue
	touched, err := coordinator.AssessOverdueFines(context.Background(), t0.Add(17*24*time.Hour))

	// assert
	require.NoError(t, err)
	require.Len(t, touched, 1)
	assert.Equal(t, overdueLoan.LoanID, touched[0].LoanID)
	assert.Equal(t, 15.0, touched[0].Amount)
	assert.Equal(t, circulation.FinePending, touched[0].Status)
}

func Test_AssessOverdueFines_IsIdempotent_InPendingAmountPerLoan(t *testing.T) {
	// arrange
	storage, coordinator := setupCoordinator(t)
	memberID := givenRegisteredMember(storage)
	copy := givenAvailableCopy(storage)
	t0 := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

	loan, err := coordinator.Checkout(context.Background(), memberID, copy.CopyID, t0)
	require.NoError(t, err)

	assessAt := t0.Add(17 * 24 * time.Hour)

	// act
	first, err := coordinator.AssessOverdueFines(context.Background(), assessAt)
	require.NoError(t, err)

	second, err := coordinator.AssessOverdueFines(context.Background(), assessAt)
	require.NoError(t, err)

	// assert - no duplicate pending fine, same amount after the second run
	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].FineID, second[0].FineID)
	assert.Equal(t, first[0].Amount, second[0].Amount)

	fines, err := coordinator.GetFinesForLoan(context.Background(), loan.LoanID)
	require.NoError(t, err)
	require.Len(t, fines, 1)
	assert.Equal(t, circulation.FinePending, fines[0].Status)
}

func Test_AssessOverdueFines_RefreshesPendingAmount_AsLiabilityGrows(t *testing.T) {
	// arrange
	storage, coordinator := setupCoordinator(t)
	memberID := givenRegisteredMember(storage)
	copy := givenAvailableCopy(storage)
	t0 := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

	loan, err := coordinator.Checkout(context.Background(), memberID, copy.CopyID, t0)
	require.NoError(t, err)

	// act
	_, err = coordinator.AssessOverdueFines(context.Background(), t0.Add(17*24*time.Hour))
	require.NoError(t, err)

	later, err := coordinator.AssessOverdueFines(context.Background(), t0.Add(20*24*time.Hour))
	require.NoError(t, err)

	// assert - 6 full days overdue now
	require.Len(t, later, 1)
	assert.Equal(t, 30.0, later[0].Amount)

	fines, err := coordinator.GetFinesForLoan(context.Background(), loan.LoanID)
	require.NoError(t, err)
	require.Len(t, fines, 1, "refresh must not create a second fine")
	assert.Equal(t, 30.0, fines[0].Amount)
}

func Test_AssessOverdueFines_LeavesSettledFinesAlone(t *testing.T) {
	// arrange
	storage, coordinator := setupCoordinator(t)
	memberID := givenRegisteredMember(storage)
	copy := givenAvailableCopy(storage)
	t0 := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

	_, err := coordinator.Checkout(context.Background(), memberID, copy.CopyID, t0)
	require.NoError(t, err)

	assessed, err := coordinator.AssessOverdueFines(context.Background(), t0.Add(17*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, assessed, 1)

	paid, err := coordinator.PayFine(context.Background(), assessed[0].FineID, t0.Add(18*24*time.Hour))
	require.NoError(t, err)

	// act
	touched, err := coordinator.AssessOverdueFines(context.Background(), t0.Add(25*24*time.Hour))

	// assert - settlement is final even though the loan is still overdue
	require.NoError(t, err)
	assert.Empty(t, touched)

	stored, err := coordinator.GetFinesForLoan(context.Background(), paid.LoanID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, circulation.FinePaid, stored[0].Status)
	assert.Equal(t, paid.Amount, stored[0].Amount)
}

func Test_AssessOverdueFines_Fails_WhenRateNotPositive(t *testing.T) {
	_, coordinator := setupCoordinator(t)

	_, err := coordinator.AssessOverdueFinesAtRate(context.Background(), time.Now(), 0)

	assert.ErrorIs(t, err, circulation.ErrInvalidPolicy)
}

func Test_PayFine_And_WaiveFine_RequirePendingStatus(t *testing.T) {
	// arrange
	storage, coordinator := setupCoordinator(t)
	memberID := givenRegisteredMember(storage)
	payCopy := givenAvailableCopy(storage)
	waiveCopy := givenAvailableCopy(storage)
	t0 := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

	_, err := coordinator.Checkout(context.Background(), memberID, payCopy.CopyID, t0)
	require.NoError(t, err)
	_, err = coordinator.Checkout(context.Background(), memberID, waiveCopy.CopyID, t0)
	require.NoError(t, err)

	assessed, err := coordinator.AssessOverdueFines(context.Background(), t0.Add(17*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, assessed, 2)

	paidAt := t0.Add(18 * 24 * time.Hour)

	// act
	paid, err := coordinator.PayFine(context.Background(), assessed[0].FineID, paidAt)
	require.NoError(t, err)

	waived, err := coordinator.WaiveFine(context.Background(), assessed[1].FineID)
	require.NoError(t, err)

	// assert
	assert.Equal(t, circulation.FinePaid, paid.Status)
	assert.Equal(t, circulation.ToTimestamp(paidAt), *paid.PaidAt)
	assert.Equal(t, circulation.FineWaived, waived.Status)
	assert.Nil(t, waived.PaidAt)

	// re-invoking either settlement on a settled fine is rejected
	_, err = coordinator.PayFine(context.Background(), paid.FineID, paidAt.Add(time.Hour))
	assert.ErrorIs(t, err, circulation.ErrInvalidState)

	_, err = coordinator.WaiveFine(context.Background(), paid.FineID)
	assert.ErrorIs(t, err, circulation.ErrInvalidState)

	_, err = coordinator.PayFine(context.Background(), waived.FineID, paidAt.Add(time.Hour))
	assert.ErrorIs(t, err, circulation.ErrInvalidState)
}

func Test_PayFine_Fails_WhenFineUnknown(t *testing.T) {
	_, coordinator := setupCoordinator(t)

	_, err := coordinator.PayFine(context.Background(), uuid.New(), time.Now())

	assert.ErrorIs(t, err, circulation.ErrNotFound)
}

func Test_ConcurrentCheckouts_OnSameCopy_ExactlyOneSucceeds(t *testing.T) {
	// arrange
	storage, coordinator := setupCoordinator(t)
	memberOne := givenRegisteredMember(storage)
	memberTwo := givenRegisteredMember(storage)
	copy := givenAvailableCopy(storage)
	now := time.Now()

	var wg sync.WaitGroup
	results := make(chan error, 2)

	// act
	for _, memberID := range []uuid.UUID{memberOne, memberTwo} {
		wg.Add(1)

		go func(memberID uuid.UUID) {
			defer wg.Done()
			_, err := coordinator.Checkout(context.Background(), memberID, copy.CopyID, now)
			results <- err
		}(memberID)
	}

	wg.Wait()
	close(results)

	// assert - exactly one winner, the loser observes InvalidState
	var successes, invalidStates int
	for err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, circulation.ErrInvalidState):
			invalidStates++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, invalidStates)

	openLoan, err := coordinator.GetOpenLoanForCopy(context.Background(), copy.CopyID)
	require.NoError(t, err)
	require.NotNil(t, openLoan)
}

func Test_OverrideCopyStatus_ForAdministrativeStates(t *testing.T) {
	// arrange
	storage, coordinator := setupCoordinator(t)
	memberID := givenRegisteredMember(storage)
	copy := givenAvailableCopy(storage)

	// administrative statuses are reachable from anywhere
	overridden, err := coordinator.OverrideCopyStatus(context.Background(), copy.CopyID, circulation.StatusDamaged)
	require.NoError(t, err)
	assert.Equal(t, circulation.StatusDamaged, overridden.Status)

	_, err = coordinator.OverrideCopyStatus(context.Background(), copy.CopyID, circulation.StatusAvailable)
	require.NoError(t, err)

	// ON_LOAN can never be set administratively
	_, err = coordinator.OverrideCopyStatus(context.Background(), copy.CopyID, circulation.StatusOnLoan)
	assert.ErrorIs(t, err, circulation.ErrInvalidState)

	// a copy with an open loan cannot be forced back to AVAILABLE
	_, err = coordinator.Checkout(context.Background(), memberID, copy.CopyID, time.Now())
	require.NoError(t, err)

	_, err = coordinator.OverrideCopyStatus(context.Background(), copy.CopyID, circulation.StatusAvailable)
	assert.ErrorIs(t, err, circulation.ErrInvalidState)
}

func Test_Coordinator_RecordsJournalEntries(t *testing.T) {
	// arrange
	storage, coordinator := setupCoordinator(t)
	memberID := givenRegisteredMember(storage)
	copy := givenAvailableCopy(storage)
	t0 := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

	// act
	loan, err := coordinator.Checkout(context.Background(), memberID, copy.CopyID, t0)
	require.NoError(t, err)

	assessed, err := coordinator.AssessOverdueFines(context.Background(), t0.Add(17*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, assessed, 1)

	_, err = coordinator.PayFine(context.Background(), assessed[0].FineID, t0.Add(18*24*time.Hour))
	require.NoError(t, err)

	_, err = coordinator.ReturnCopy(context.Background(), loan.LoanID, t0.Add(18*24*time.Hour))
	require.NoError(t, err)

	// assert
	entries := storage.JournalEntries()
	require.Len(t, entries, 4)
	assert.Equal(t, circulation.CopyCheckedOutEntryType, entries[0].EntryType)
	assert.Equal(t, circulation.FineAssessedEntryType, entries[1].EntryType)
	assert.Equal(t, circulation.FinePaidEntryType, entries[2].EntryType)
	assert.Equal(t, circulation.CopyReturnedEntryType, entries[3].EntryType)

	decoded, err := circulation.PayloadFromJournalEntry(entries[0])
	require.NoError(t, err)
	assert.Equal(t, loan.LoanID, decoded.(circulation.CopyCheckedOutPayload).LoanID)
}

func Test_NewCoordinator_RejectsInvalidConfiguration(t *testing.T) {
	storage := memoryengine.NewStorage()

	_, err := circulation.NewCoordinator(nil, storage, circulation.DefaultPolicy())
	assert.ErrorIs(t, err, circulation.ErrNilStorage)

	_, err = circulation.NewCoordinator(storage, nil, circulation.DefaultPolicy())
	assert.ErrorIs(t, err, circulation.ErrNilMemberLookup)

	_, err = circulation.NewCoordinator(storage, storage, circulation.Policy{LoanPeriod: -1, FineRatePerDay: 5.0})
	assert.ErrorIs(t, err, circulation.ErrInvalidPolicy)
}

// Test_Circulation_EndToEnd walks one copy through the full lifecycle:
// checkout, overdue assessment, payment, and return.
func Test_Circulation_EndToEnd(t *testing.T) {
	// arrange
	storage, coordinator := setupCoordinator(t)
	memberID := givenRegisteredMember(storage)
	copy := givenAvailableCopy(storage)
	t0 := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

	// checkout for 14 days
	loan, err := coordinator.Checkout(context.Background(), memberID, copy.CopyID, t0)
	require.NoError(t, err)
	assert.Equal(t, circulation.ToTimestamp(t0), loan.IssuedAt)
	assert.Equal(t, circulation.ToTimestamp(t0).Add(14*24*time.Hour), loan.DueAt)
	assertCopyStatusUnchanged(t, coordinator, copy.CopyID, circulation.StatusOnLoan)

	// 17 days in: 3 full days overdue at rate 5.0
	assessed, err := coordinator.AssessOverdueFines(context.Background(), t0.Add(17*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, assessed, 1)
	assert.Equal(t, loan.LoanID, assessed[0].LoanID)
	assert.Equal(t, 15.0, assessed[0].Amount)
	assert.Equal(t, circulation.FinePending, assessed[0].Status)

	// day 18: the member pays
	paid, err := coordinator.PayFine(context.Background(), assessed[0].FineID, t0.Add(18*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, circulation.FinePaid, paid.Status)
	assert.Equal(t, circulation.ToTimestamp(t0.Add(18*24*time.Hour)), *paid.PaidAt)

	// and returns the copy
	closed, err := coordinator.ReturnCopy(context.Background(), loan.LoanID, t0.Add(18*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, circulation.ToTimestamp(t0.Add(18*24*time.Hour)), *closed.ReturnedAt)
	assertCopyStatusUnchanged(t, coordinator, copy.CopyID, circulation.StatusAvailable)

	// member-facing reads
	openLoans, err := coordinator.GetOpenLoansForMember(context.Background(), memberID)
	require.NoError(t, err)
	assert.Empty(t, openLoans)

	memberFines, err := coordinator.GetFinesForMember(context.Background(), memberID)
	require.NoError(t, err)
	require.Len(t, memberFines, 1)
	assert.Equal(t, circulation.FinePaid, memberFines[0].Status)
}

/***** test helpers *****/

func setupCoordinator(t *testing.T) (*memoryengine.Storage, *circulation.Coordinator) {
	t.Helper()

	storage := memoryengine.NewStorage()

	coordinator, err := circulation.NewCoordinator(
		storage,
		storage,
		circulation.DefaultPolicy(),
		circulation.WithJournal(storage),
	)
	require.NoError(t, err)

	return storage, coordinator
}

func givenRegisteredMember(storage *memoryengine.Storage) uuid.UUID {
	memberID := uuid.New()
	storage.AddMember(memberID)

	return memberID
}

func givenAvailableCopy(storage *memoryengine.Storage) circulation.Copy {
	copy := circulation.Copy{
		CopyID:  uuid.New(),
		BookID:  uuid.New(),
		Barcode: uuid.NewString(),
		Status:  circulation.StatusAvailable,
	}
	storage.AddCopy(copy)

	return copy
}

func assertCopyStatusUnchanged(t *testing.T, coordinator *circulation.Coordinator, copyID uuid.UUID, expected circulation.CopyStatus) {
	t.Helper()

	stored, err := coordinator.GetCopy(context.Background(), copyID)
	require.NoError(t, err)
	assert.Equal(t, expected, stored.Status)
}

