package circulation

import (
	"errors"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

// Journal entry type identifiers.
const (
	CopyCheckedOutEntryType = "CopyCheckedOut"
	CopyReturnedEntryType   = "CopyReturned"
	FineAssessedEntryType   = "FineAssessed"
	FinePaidEntryType       = "FinePaid"
	FineWaivedEntryType     = "FineWaived"
)

// ErrMarshalingJournalPayloadFailed is returned when a journal payload cannot be serialized.
var ErrMarshalingJournalPayloadFailed = errors.New("marshaling journal payload failed")

// ErrUnmarshalingJournalPayloadFailed is returned when a journal payload cannot be deserialized.
var ErrUnmarshalingJournalPayloadFailed = errors.New("unmarshaling journal payload failed")

// ErrUnknownJournalEntryType is returned when a journal entry carries an unknown type identifier.
var ErrUnknownJournalEntryType = errors.New("unknown journal entry type")

// JournalEntry is one record in the append-only circulation history. The
// payload is the JSON serialization of one of the *Payload types below.
type JournalEntry struct {
	EntryID    uuid.UUID
	EntryType  string
	OccurredAt Timestamp
	Payload    []byte
}

// CopyCheckedOutPayload records a successful checkout.
type CopyCheckedOutPayload struct {
	LoanID   uuid.UUID `json:"loanId"`
	MemberID uuid.UUID `json:"memberId"`
	CopyID   uuid.UUID `json:"copyId"`
	DueAt    time.Time `json:"dueAt"`
}

// CopyReturnedPayload records a successful return.
type CopyReturnedPayload struct {
	LoanID   uuid.UUID `json:"loanId"`
	MemberID uuid.UUID `json:"memberId"`
	CopyID   uuid.UUID `json:"copyId"`
}

// FineAssessedPayload records a fine creation or a pending-amount refresh.
type FineAssessedPayload struct {
	FineID uuid.UUID `json:"fineId"`
	LoanID uuid.UUID `json:"loanId"`
	Amount float64   `json:"amount"`
}

// FinePaidPayload records a fine settled by payment.
type FinePaidPayload struct {
	FineID uuid.UUID `json:"fineId"`
	LoanID uuid.UUID `json:"loanId"`
	Amount float64   `json:"amount"`
}

// FineWaivedPayload records a fine settled by waiver.
type FineWaivedPayload struct {
	FineID uuid.UUID `json:"fineId"`
	LoanID uuid.UUID `json:"loanId"`
	Amount float64   `json:"amount"`
}

// BuildJournalEntry serializes a payload into a JournalEntry of the given type.
func BuildJournalEntry(entryType string, payload any, occurredAt time.Time) (JournalEntry, error) {
	payloadJSON, err := jsoniter.ConfigFastest.Marshal(payload)
	if err != nil {
		return JournalEntry{}, errors.Join(ErrMarshalingJournalPayloadFailed, err)
	}

	return JournalEntry{
		EntryID:    uuid.New(),
		EntryType:  entryType,
		OccurredAt: ToTimestamp(occurredAt),
		Payload:    payloadJSON,
	}, nil
}

// PayloadFromJournalEntry deserializes the typed payload of a journal entry.
func PayloadFromJournalEntry(entry JournalEntry) (any, error) {
	switch entry.EntryType {
	case CopyCheckedOutEntryType:
		var payload CopyCheckedOutPayload
		if err := jsoniter.ConfigFastest.Unmarshal(entry.Payload, &payload); err != nil {
			return nil, errors.Join(ErrUnmarshalingJournalPayloadFailed, err)
		}
		return payload, nil

	case CopyReturnedEntryType:
		var payload CopyReturnedPayload
		if err := jsoniter.ConfigFastest.Unmarshal(entry.Payload, &payload); err != nil {
			return nil, errors.Join(ErrUnmarshalingJournalPayloadFailed, err)
		}
		return payload, nil

	case FineAssessedEntryType:
		var payload FineAssessedPayload
		if err := jsoniter.ConfigFastest.Unmarshal(entry.Payload, &payload); err != nil {
			return nil, errors.Join(ErrUnmarshalingJournalPayloadFailed, err)
		}
		return payload, nil

	case FinePaidEntryType:
		var payload FinePaidPayload
		if err := jsoniter.ConfigFastest.Unmarshal(entry.Payload, &payload); err != nil {
			return nil, errors.Join(ErrUnmarshalingJournalPayloadFailed, err)
		}
		return payload, nil

	case FineWaivedEntryType:
		var payload FineWaivedPayload
		if err := jsoniter.ConfigFastest.Unmarshal(entry.Payload, &payload); err != nil {
			return nil, errors.Join(ErrUnmarshalingJournalPayloadFailed, err)
		}
		return payload, nil

	default:
		return nil, errors.Join(ErrUnknownJournalEntryType, errors.New(entry.EntryType))
	}
}
