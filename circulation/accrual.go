package circulation

import (
	"time"
)

// AccruedAmount computes the fine accrued on a loan due at dueAt, observed at
// asOf, at the given daily rate. This is a pure function with no side effects.
//
// Partial days truncate down: a loan overdue by 3 days and 23 hours owes for
// 3 days, not 4. A loan not yet overdue owes nothing.
func AccruedAmount(dueAt time.Time, asOf time.Time, ratePerDay float64) float64 {
	if !asOf.After(dueAt) {
		return 0
	}

	daysOverdue := int64(asOf.Sub(dueAt) / (24 * time.Hour))

	return float64(daysOverdue) * ratePerDay
}

// AssessmentDecision represents the outcome of assessing one overdue loan.
// This enables type-safe, functional programming style decision modeling.
//
// IMPORTANT: AssessmentDecision should only be constructed using the provided
// factory methods: NoAssessment(), CreateFineDecision(fine), or
// RefreshFineDecision(fine). Do not construct AssessmentDecision directly.
type AssessmentDecision struct {
	Outcome string // "none", "create", or "refresh"
	Fine    Fine   // zero value for "none" decisions
}

const (
	noneOutcome    = "none"
	createOutcome  = "create"
	refreshOutcome = "refresh"
)

// NoAssessment creates an AssessmentDecision indicating no fine write is needed.
func NoAssessment() AssessmentDecision {
	return AssessmentDecision{
		Outcome: noneOutcome,
	}
}

// CreateFineDecision creates an AssessmentDecision indicating a new pending fine must be inserted.
func CreateFineDecision(fine Fine) AssessmentDecision {
	return AssessmentDecision{
		Outcome: createOutcome,
		Fine:    fine,
	}
}

// RefreshFineDecision creates an AssessmentDecision indicating an existing pending fine must be
// updated to the freshly computed amount.
func RefreshFineDecision(fine Fine) AssessmentDecision {
	return AssessmentDecision{
		Outcome: refreshOutcome,
		Fine:    fine,
	}
}

// HasFineToWrite returns true if there is a fine to insert or update in the fine store.
func (d AssessmentDecision) HasFineToWrite() bool {
	return d.Outcome != noneOutcome
}

// DecideAssessment implements the per-loan fine assessment policy.
// This is a pure function with no side effects - it takes the loan, the fine
// currently recorded for it (nil if none), the assessment time, and the daily
// rate, and returns the fine write that should happen.
//
// Business Rules:
//
//	GIVEN: An open loan with DueAt in the past and the fine recorded for it
//	WHEN: An assessment pass runs at a given time
//	THEN: A pending fine is created when none exists and the accrual is positive
//	THEN: An existing pending fine is refreshed to the current accrual
//	NO-OP: The accrual is zero and no fine exists (a zero-amount fine is never created)
//	NO-OP: A settled (paid or waived) fine exists - settlement is final
//
// Accrual is monotonically non-decreasing while the loan stays open, so the
// refresh keeps the pending fine reflecting current liability rather than
// freezing it at the first assessment run. Repeated passes with unchanged
// inputs are idempotent in the resulting pending amount.
func DecideAssessment(loan Loan, existing *Fine, now time.Time, ratePerDay float64) AssessmentDecision {
	if existing != nil && existing.Status != FinePending {
		return NoAssessment() // settlement is final, a renewed overdue period needs a new loan
	}

	amount := AccruedAmount(loan.DueAt, ToTimestamp(now), ratePerDay)

	if existing != nil {
		refreshed := *existing
		refreshed.Amount = amount
		refreshed.AssessedAt = ToTimestamp(now)

		return RefreshFineDecision(refreshed)
	}

	if amount <= 0 {
		return NoAssessment()
	}

	return CreateFineDecision(BuildPendingFine(loan.LoanID, amount, now))
}
