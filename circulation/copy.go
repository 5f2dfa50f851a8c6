package circulation

import (
	"fmt"

	"github.com/google/uuid"
)

// CopyStatus represents the availability status of a physical copy.
type CopyStatus string

// The legal statuses of a physical copy. Checkout and return only ever move a
// copy between StatusAvailable and StatusOnLoan; the remaining statuses are
// administrative and reachable only through OverrideCopyStatus.
const (
	StatusAvailable CopyStatus = "AVAILABLE"
	StatusOnLoan    CopyStatus = "ON_LOAN"
	StatusReserved  CopyStatus = "RESERVED"
	StatusDamaged   CopyStatus = "DAMAGED"
	StatusLost      CopyStatus = "LOST"
)

// IsValid reports whether the status is one of the defined copy statuses.
func (s CopyStatus) IsValid() bool {
	switch s {
	case StatusAvailable, StatusOnLoan, StatusReserved, StatusDamaged, StatusLost:
		return true
	default:
		return false
	}
}

// Copy represents one physical, trackable instance of a catalogued book.
type Copy struct {
	CopyID   uuid.UUID
	BookID   uuid.UUID
	Barcode  BarcodeString
	Status   CopyStatus
	Location LocationString
}

// BuildCopy creates a new available Copy for a catalogued book.
func BuildCopy(bookID uuid.UUID, barcode BarcodeString, location LocationString) Copy {
	return Copy{
		CopyID:   uuid.New(),
		BookID:   bookID,
		Barcode:  barcode,
		Status:   StatusAvailable,
		Location: location,
	}
}

// TransitionCopyStatus validates a requested status change against the copy
// state machine and returns the copy with the new status applied.
// The circulation core only ever exercises AVAILABLE -> ON_LOAN (checkout)
// and ON_LOAN -> AVAILABLE (return); any other requested transition is
// rejected with ErrInvalidState, never silently coerced.
func TransitionCopyStatus(copy Copy, target CopyStatus) (Copy, error) {
	legal := (copy.Status == StatusAvailable && target == StatusOnLoan) ||
		(copy.Status == StatusOnLoan && target == StatusAvailable)

	if !legal {
		return Copy{}, fmt.Errorf(
			"copy %s: transition %s -> %s: %w",
			copy.CopyID, copy.Status, target, ErrInvalidState)
	}

	copy.Status = target

	return copy, nil
}
