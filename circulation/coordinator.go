package circulation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	logMsgCheckoutCommitted     = "checkout committed"
	logMsgReturnCommitted       = "return committed"
	logMsgAssessmentCompleted   = "fine assessment pass completed"
	logMsgFineSettled           = "fine settled"
	logMsgCopyStatusOverridden  = "copy status overridden"
	logMsgOperationFailed       = "operation failed"
	logMsgJournalBuildFailed    = "failed to build journal entry"
	logAttrError                = "error"
	logAttrMemberID             = "member_id"
	logAttrCopyID               = "copy_id"
	logAttrLoanID               = "loan_id"
	logAttrFineID               = "fine_id"
	logAttrAmount               = "amount"
	logAttrStatus               = "status"
	logAttrDurationMS           = "duration_ms"
	logAttrFinesTouched         = "fines_touched"
	metricOperationDuration     = "circulation_operation_duration"
	metricOperationTotal        = "circulation_operation_total"
	labelOperation              = "operation"
	labelOutcome                = "outcome"
	outcomeSuccess              = "success"
	outcomeFailure              = "failure"
	operationCheckout           = "checkout"
	operationReturnCopy         = "return_copy"
	operationAssessFines        = "assess_overdue_fines"
	operationPayFine            = "pay_fine"
	operationWaiveFine          = "waive_fine"
	operationOverrideCopyStatus = "override_copy_status"
)

// Coordinator orchestrates the copy state machine, the loan ledger, and the
// fine accrual engine into atomic business operations. It is the only
// component callers interact with directly, and the sole mutator of
// Copy.Status and Loan.ReturnedAt.
type Coordinator struct {
	storage          Storage
	members          MemberLookup
	policy           Policy
	journal          JournalStore
	logger           Logger
	contextualLogger ContextualLogger
	metricsCollector MetricsCollector
	copyLocks        *keyedMutex
	loanLocks        *keyedMutex
}

// NewCoordinator creates a Coordinator over the given storage engine and
// member lookup, with optional configuration.
func NewCoordinator(storage Storage, members MemberLookup, policy Policy, options ...Option) (*Coordinator, error) {
	if storage == nil {
		return nil, ErrNilStorage
	}

	if members == nil {
		return nil, ErrNilMemberLookup
	}

	if err := policy.Validate(); err != nil {
		return nil, err
	}

	c := &Coordinator{
		storage:   storage,
		members:   members,
		policy:    policy,
		copyLocks: newKeyedMutex(),
		loanLocks: newKeyedMutex(),
	}

	for _, option := range options {
		if err := option(c); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// Policy returns the policy the coordinator was configured with.
func (c *Coordinator) Policy() Policy {
	return c.policy
}

// Checkout lends an available copy to a registered member for the policy's
// loan period. On success the loan is open, due at now plus the loan period,
// and the copy is ON_LOAN. On any failure nothing is mutated.
func (c *Coordinator) Checkout(ctx context.Context, memberID uuid.UUID, copyID uuid.UUID, now time.Time) (Loan, error) {
	return c.CheckoutForPeriod(ctx, memberID, copyID, now, c.policy.LoanPeriod)
}

// CheckoutForPeriod is Checkout with an explicit loan period, for callers that
// lend some material on shorter terms. A non-positive period is rejected with
// ErrInvalidPolicy.
func (c *Coordinator) CheckoutForPeriod(
	ctx context.Context,
	memberID uuid.UUID,
	copyID uuid.UUID,
	now time.Time,
	loanPeriod time.Duration,
) (Loan, error) {

	start := time.Now()

	if loanPeriod <= 0 {
		return Loan{}, c.fail(ctx, operationCheckout, start,
			errors.Join(ErrInvalidPolicy, fmt.Errorf("loan period must be positive, got %s", loanPeriod)))
	}

	c.copyLocks.lock(copyID)
	defer c.copyLocks.unlock(copyID)

	memberExists, err := c.members.MemberExists(ctx, memberID)
	if err != nil {
		return Loan{}, c.fail(ctx, operationCheckout, start, err)
	}

	if !memberExists {
		return Loan{}, c.fail(ctx, operationCheckout, start,
			fmt.Errorf("member %s: %w", memberID, ErrNotFound))
	}

	var loan Loan

	txErr := c.storage.InTransaction(ctx, func(ctx context.Context) error {
		copy, getErr := c.storage.GetCopy(ctx, copyID)
		if getErr != nil {
			return getErr
		}

		if copy == nil {
			return fmt.Errorf("copy %s: %w", copyID, ErrNotFound)
		}

		onLoan, transitionErr := TransitionCopyStatus(*copy, StatusOnLoan)
		if transitionErr != nil {
			return transitionErr
		}

		loan = BuildLoan(memberID, copyID, now, loanPeriod)

		if insertErr := c.storage.InsertLoan(ctx, loan); insertErr != nil {
			return insertErr
		}

		if statusErr := c.storage.SetCopyStatus(ctx, copyID, onLoan.Status); statusErr != nil {
			return statusErr
		}

		return c.appendToJournal(ctx, CopyCheckedOutEntryType, CopyCheckedOutPayload{
			LoanID:   loan.LoanID,
			MemberID: memberID,
			CopyID:   copyID,
			DueAt:    loan.DueAt,
		}, now)
	})
	if txErr != nil {
		return Loan{}, c.fail(ctx, operationCheckout, start, txErr)
	}

	c.succeed(ctx, operationCheckout, start, logMsgCheckoutCommitted,
		logAttrLoanID, loan.LoanID.String(),
		logAttrMemberID, memberID.String(),
		logAttrCopyID, copyID.String())

	return loan, nil
}

// ReturnCopy closes an open loan at the given time and flips the copy back to
// AVAILABLE. Returning an already closed loan fails with ErrInvalidState and
// mutates nothing.
func (c *Coordinator) ReturnCopy(ctx context.Context, loanID uuid.UUID, now time.Time) (Loan, error) {
	start := time.Now()

	peek, err := c.storage.GetLoan(ctx, loanID)
	if err != nil {
		return Loan{}, c.fail(ctx, operationReturnCopy, start, err)
	}

	if peek == nil {
		return Loan{}, c.fail(ctx, operationReturnCopy, start,
			fmt.Errorf("loan %s: %w", loanID, ErrNotFound))
	}

	c.copyLocks.lock(peek.CopyID)
	defer c.copyLocks.unlock(peek.CopyID)

	var closed Loan

	txErr := c.storage.InTransaction(ctx, func(ctx context.Context) error {
		loan, getErr := c.storage.GetLoan(ctx, loanID)
		if getErr != nil {
			return getErr
		}

		if loan == nil {
			return fmt.Errorf("loan %s: %w", loanID, ErrNotFound)
		}

		var closeErr error
		closed, closeErr = loan.Close(now)
		if closeErr != nil {
			return closeErr
		}

		if storeErr := c.storage.CloseLoan(ctx, loanID, *closed.ReturnedAt); storeErr != nil {
			return storeErr
		}

		copy, copyErr := c.storage.GetCopy(ctx, loan.CopyID)
		if copyErr != nil {
			return copyErr
		}

		if copy == nil {
			return fmt.Errorf("copy %s: %w", loan.CopyID, ErrNotFound)
		}

		available, transitionErr := TransitionCopyStatus(*copy, StatusAvailable)
		if transitionErr != nil {
			return transitionErr
		}

		if statusErr := c.storage.SetCopyStatus(ctx, copy.CopyID, available.Status); statusErr != nil {
			return statusErr
		}

		return c.appendToJournal(ctx, CopyReturnedEntryType, CopyReturnedPayload{
			LoanID:   loan.LoanID,
			MemberID: loan.MemberID,
			CopyID:   loan.CopyID,
		}, now)
	})
	if txErr != nil {
		return Loan{}, c.fail(ctx, operationReturnCopy, start, txErr)
	}

	c.succeed(ctx, operationReturnCopy, start, logMsgReturnCommitted,
		logAttrLoanID, loanID.String(),
		logAttrCopyID, closed.CopyID.String())

	return closed, nil
}

// AssessOverdueFines runs the fine assessment policy over all currently open
// and overdue loans at the policy's fine rate, returning the fines it created
// or refreshed. Repeated passes with unchanged inputs leave each loan's
// pending amount unchanged.
func (c *Coordinator) AssessOverdueFines(ctx context.Context, now time.Time) ([]Fine, error) {
	return c.AssessOverdueFinesAtRate(ctx, now, c.policy.FineRatePerDay)
}

// AssessOverdueFinesAtRate is AssessOverdueFines with an explicit daily rate.
// A non-positive rate is rejected with ErrInvalidPolicy.
func (c *Coordinator) AssessOverdueFinesAtRate(ctx context.Context, now time.Time, ratePerDay float64) ([]Fine, error) {
	start := time.Now()

	if ratePerDay <= 0 {
		return nil, c.fail(ctx, operationAssessFines, start,
			errors.Join(ErrInvalidPolicy, fmt.Errorf("fine rate per day must be positive, got %g", ratePerDay)))
	}

	overdue, err := c.storage.FindOpenOverdueLoans(ctx, now)
	if err != nil {
		return nil, c.fail(ctx, operationAssessFines, start, err)
	}

	var touched []Fine

	for _, loan := range overdue {
		fine, assessErr := c.assessLoan(ctx, loan, now, ratePerDay)
		if assessErr != nil {
			return nil, c.fail(ctx, operationAssessFines, start, assessErr)
		}

		if fine != nil {
			touched = append(touched, *fine)
		}
	}

	c.succeed(ctx, operationAssessFines, start, logMsgAssessmentCompleted,
		logAttrFinesTouched, len(touched))

	if c.metricsCollector != nil {
		c.metricsCollector.RecordValue(metricOperationTotal, float64(len(touched)),
			map[string]string{labelOperation: operationAssessFines, labelOutcome: outcomeSuccess})
	}

	return touched, nil
}

// assessLoan applies the per-loan assessment decision as one atomic unit,
// serialized per loan id.
func (c *Coordinator) assessLoan(ctx context.Context, loan Loan, now time.Time, ratePerDay float64) (*Fine, error) {
	c.loanLocks.lock(loan.LoanID)
	defer c.loanLocks.unlock(loan.LoanID)

	var written *Fine

	txErr := c.storage.InTransaction(ctx, func(ctx context.Context) error {
		current, getErr := c.storage.GetLoan(ctx, loan.LoanID)
		if getErr != nil {
			return getErr
		}

		// The loan may have been returned between the scan and this step.
		if current == nil || !current.IsOverdue(now) {
			return nil
		}

		existing, fineErr := c.storage.GetFineByLoan(ctx, loan.LoanID)
		if fineErr != nil {
			return fineErr
		}

		decision := DecideAssessment(*current, existing, now, ratePerDay)
		if !decision.HasFineToWrite() {
			return nil
		}

		switch decision.Outcome {
		case createOutcome:
			if insertErr := c.storage.InsertFine(ctx, decision.Fine); insertErr != nil {
				return insertErr
			}

		case refreshOutcome:
			updateErr := c.storage.UpdateFineAmount(
				ctx, decision.Fine.FineID, decision.Fine.Amount, decision.Fine.AssessedAt)
			if updateErr != nil {
				return updateErr
			}
		}

		written = &decision.Fine

		return c.appendToJournal(ctx, FineAssessedEntryType, FineAssessedPayload{
			FineID: decision.Fine.FineID,
			LoanID: decision.Fine.LoanID,
			Amount: decision.Fine.Amount,
		}, now)
	})
	if txErr != nil {
		return nil, txErr
	}

	return written, nil
}

// PayFine settles a pending fine as paid at the given time. Settling an
// already settled fine fails with ErrInvalidState.
func (c *Coordinator) PayFine(ctx context.Context, fineID uuid.UUID, now time.Time) (Fine, error) {
	return c.settleFine(ctx, operationPayFine, fineID, func(fine Fine) (Fine, error) {
		return fine.Pay(now)
	}, now)
}

// WaiveFine settles a pending fine as waived. PaidAt stays absent. Settling an
// already settled fine fails with ErrInvalidState.
func (c *Coordinator) WaiveFine(ctx context.Context, fineID uuid.UUID) (Fine, error) {
	return c.settleFine(ctx, operationWaiveFine, fineID, Fine.Waive, time.Time{})
}

// settleFine applies one of the terminal fine transitions as an atomic unit,
// serialized per the fine's loan id.
func (c *Coordinator) settleFine(
	ctx context.Context,
	operation string,
	fineID uuid.UUID,
	settle func(Fine) (Fine, error),
	occurredAt time.Time,
) (Fine, error) {

	start := time.Now()

	peek, err := c.storage.GetFine(ctx, fineID)
	if err != nil {
		return Fine{}, c.fail(ctx, operation, start, err)
	}

	if peek == nil {
		return Fine{}, c.fail(ctx, operation, start,
			fmt.Errorf("fine %s: %w", fineID, ErrNotFound))
	}

	c.loanLocks.lock(peek.LoanID)
	defer c.loanLocks.unlock(peek.LoanID)

	var settled Fine

	txErr := c.storage.InTransaction(ctx, func(ctx context.Context) error {
		fine, getErr := c.storage.GetFine(ctx, fineID)
		if getErr != nil {
			return getErr
		}

		if fine == nil {
			return fmt.Errorf("fine %s: %w", fineID, ErrNotFound)
		}

		var settleErr error
		settled, settleErr = settle(*fine)
		if settleErr != nil {
			return settleErr
		}

		if storeErr := c.storage.UpdateFineStatus(ctx, fineID, settled.Status, settled.PaidAt); storeErr != nil {
			return storeErr
		}

		entryType := FinePaidEntryType
		payload := any(FinePaidPayload{FineID: settled.FineID, LoanID: settled.LoanID, Amount: settled.Amount})
		if settled.Status == FineWaived {
			entryType = FineWaivedEntryType
			payload = FineWaivedPayload{FineID: settled.FineID, LoanID: settled.LoanID, Amount: settled.Amount}
		}

		// Waivers carry no settlement time of their own; stamp the journal
		// entry with the wall clock instead.
		if occurredAt.IsZero() {
			occurredAt = time.Now()
		}

		return c.appendToJournal(ctx, entryType, payload, occurredAt)
	})
	if txErr != nil {
		return Fine{}, c.fail(ctx, operation, start, txErr)
	}

	c.succeed(ctx, operation, start, logMsgFineSettled,
		logAttrFineID, fineID.String(),
		logAttrStatus, string(settled.Status),
		logAttrAmount, settled.Amount)

	return settled, nil
}

// OverrideCopyStatus is the administrative escape hatch for the RESERVED,
// DAMAGED, and LOST statuses. It refuses to mark a copy with an open loan
// AVAILABLE and refuses ON_LOAN entirely, so the loan/copy invariant cannot
// be broken from outside checkout and return.
func (c *Coordinator) OverrideCopyStatus(ctx context.Context, copyID uuid.UUID, status CopyStatus) (Copy, error) {
	start := time.Now()

	if !status.IsValid() || status == StatusOnLoan {
		return Copy{}, c.fail(ctx, operationOverrideCopyStatus, start,
			fmt.Errorf("copy status %q cannot be set administratively: %w", status, ErrInvalidState))
	}

	c.copyLocks.lock(copyID)
	defer c.copyLocks.unlock(copyID)

	var overridden Copy

	txErr := c.storage.InTransaction(ctx, func(ctx context.Context) error {
		copy, getErr := c.storage.GetCopy(ctx, copyID)
		if getErr != nil {
			return getErr
		}

		if copy == nil {
			return fmt.Errorf("copy %s: %w", copyID, ErrNotFound)
		}

		if status == StatusAvailable {
			open, loanErr := c.storage.FindOpenLoanByCopy(ctx, copyID)
			if loanErr != nil {
				return loanErr
			}

			if open != nil {
				return fmt.Errorf("copy %s has an open loan: %w", copyID, ErrInvalidState)
			}
		}

		overridden = *copy
		overridden.Status = status

		return c.storage.SetCopyStatus(ctx, copyID, status)
	})
	if txErr != nil {
		return Copy{}, c.fail(ctx, operationOverrideCopyStatus, start, txErr)
	}

	c.succeed(ctx, operationOverrideCopyStatus, start, logMsgCopyStatusOverridden,
		logAttrCopyID, copyID.String(),
		logAttrStatus, string(status))

	return overridden, nil
}

// GetCopy returns the copy for an id, or ErrNotFound.
func (c *Coordinator) GetCopy(ctx context.Context, copyID uuid.UUID) (Copy, error) {
	copy, err := c.storage.GetCopy(ctx, copyID)
	if err != nil {
		return Copy{}, err
	}

	if copy == nil {
		return Copy{}, fmt.Errorf("copy %s: %w", copyID, ErrNotFound)
	}

	return *copy, nil
}

// GetCopyByBarcode returns the copy carrying a barcode, or ErrNotFound.
func (c *Coordinator) GetCopyByBarcode(ctx context.Context, barcode BarcodeString) (Copy, error) {
	copy, err := c.storage.GetCopyByBarcode(ctx, barcode)
	if err != nil {
		return Copy{}, err
	}

	if copy == nil {
		return Copy{}, fmt.Errorf("copy with barcode %q: %w", barcode, ErrNotFound)
	}

	return *copy, nil
}

// GetLoan returns the loan for an id, or ErrNotFound.
func (c *Coordinator) GetLoan(ctx context.Context, loanID uuid.UUID) (Loan, error) {
	loan, err := c.storage.GetLoan(ctx, loanID)
	if err != nil {
		return Loan{}, err
	}

	if loan == nil {
		return Loan{}, fmt.Errorf("loan %s: %w", loanID, ErrNotFound)
	}

	return *loan, nil
}

// GetOpenLoanForCopy returns the single open loan for a copy, or nil when the
// copy is not out.
func (c *Coordinator) GetOpenLoanForCopy(ctx context.Context, copyID uuid.UUID) (*Loan, error) {
	return c.storage.FindOpenLoanByCopy(ctx, copyID)
}

// GetOpenLoansForMember returns all open loans held by a member.
func (c *Coordinator) GetOpenLoansForMember(ctx context.Context, memberID uuid.UUID) ([]Loan, error) {
	return c.storage.FindOpenLoansByMember(ctx, memberID)
}

// GetFinesForLoan returns the fines recorded for a loan. The engine records at
// most one fine per loan, so the slice has zero or one element.
func (c *Coordinator) GetFinesForLoan(ctx context.Context, loanID uuid.UUID) ([]Fine, error) {
	fine, err := c.storage.GetFineByLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}

	if fine == nil {
		return nil, nil
	}

	return []Fine{*fine}, nil
}

// GetFinesForMember returns all fines whose loan belongs to a member.
func (c *Coordinator) GetFinesForMember(ctx context.Context, memberID uuid.UUID) ([]Fine, error) {
	return c.storage.ListFinesByMember(ctx, memberID)
}

// ListOverdueLoans returns all open loans past due at the given time, for
// rendering by reporting layers.
func (c *Coordinator) ListOverdueLoans(ctx context.Context, now time.Time) ([]Loan, error) {
	return c.storage.FindOpenOverdueLoans(ctx, now)
}

// appendToJournal records a circulation event when a journal is configured.
func (c *Coordinator) appendToJournal(ctx context.Context, entryType string, payload any, occurredAt time.Time) error {
	if c.journal == nil {
		return nil
	}

	entry, err := BuildJournalEntry(entryType, payload, occurredAt)
	if err != nil {
		if c.logger != nil {
			c.logger.Warn(logMsgJournalBuildFailed, logAttrError, err.Error())
		}

		return err
	}

	return c.journal.AppendJournalEntry(ctx, entry)
}

// succeed records metrics and logs for a committed operation.
func (c *Coordinator) succeed(ctx context.Context, operation string, start time.Time, msg string, args ...any) {
	duration := time.Since(start)

	if c.metricsCollector != nil {
		labels := map[string]string{labelOperation: operation, labelOutcome: outcomeSuccess}
		c.metricsCollector.RecordDuration(metricOperationDuration, duration, labels)
		c.metricsCollector.IncrementCounter(metricOperationTotal, labels)
	}

	if c.contextualLogger != nil {
		c.contextualLogger.InfoContext(ctx, msg, append(args, logAttrDurationMS, duration.Milliseconds())...)
		return
	}

	if c.logger != nil {
		c.logger.Info(msg, append(args, logAttrDurationMS, duration.Milliseconds())...)
	}
}

// fail records metrics and logs for a failed operation and passes the error
// through unchanged.
func (c *Coordinator) fail(ctx context.Context, operation string, start time.Time, err error) error {
	if c.metricsCollector != nil {
		labels := map[string]string{labelOperation: operation, labelOutcome: outcomeFailure}
		c.metricsCollector.RecordDuration(metricOperationDuration, time.Since(start), labels)
		c.metricsCollector.IncrementCounter(metricOperationTotal, labels)
	}

	// Business rule rejections are expected; only log them at debug level.
	expected := errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidState) || errors.Is(err, ErrInvalidPolicy)

	switch {
	case c.contextualLogger != nil && expected:
		c.contextualLogger.DebugContext(ctx, logMsgOperationFailed, labelOperation, operation, logAttrError, err.Error())
	case c.contextualLogger != nil:
		c.contextualLogger.ErrorContext(ctx, logMsgOperationFailed, labelOperation, operation, logAttrError, err.Error())
	case c.logger != nil && expected:
		c.logger.Debug(logMsgOperationFailed, labelOperation, operation, logAttrError, err.Error())
	case c.logger != nil:
		c.logger.Error(logMsgOperationFailed, labelOperation, operation, logAttrError, err.Error())
	}

	return err
}
