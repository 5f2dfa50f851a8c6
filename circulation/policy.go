package circulation

import (
	"errors"
	"fmt"
	"time"
)

// Policy carries the institution's configurable circulation parameters.
// Neither value is a hard constant anywhere in the engine.
type Policy struct {
	// LoanPeriod is how long a checkout lasts before the loan is due.
	LoanPeriod time.Duration

	// FineRatePerDay is the monetary amount accrued per full day overdue.
	FineRatePerDay float64
}

// DefaultPolicy returns the institution defaults: a 14 day loan period and a
// fine rate of 5.0 per day overdue.
func DefaultPolicy() Policy {
	return Policy{
		LoanPeriod:     14 * 24 * time.Hour,
		FineRatePerDay: 5.0,
	}
}

// Validate rejects non-positive loan periods and fine rates.
func (p Policy) Validate() error {
	if p.LoanPeriod <= 0 {
		return errors.Join(ErrInvalidPolicy, fmt.Errorf("loan period must be positive, got %s", p.LoanPeriod))
	}

	if p.FineRatePerDay <= 0 {
		return errors.Join(ErrInvalidPolicy, fmt.Errorf("fine rate per day must be positive, got %g", p.FineRatePerDay))
	}

	return nil
}
