package circulation_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/goldenoaks/circulation-go/circulation"
)

func Test_JournalEntry_RoundTripsTypedPayloads(t *testing.T) {
	now := time.Date(2025, 5, 2, 8, 0, 0, 0, time.UTC)

	checkedOut := circulation.CopyCheckedOutPayload{
		LoanID:   uuid.New(),
		MemberID: uuid.New(),
		CopyID:   uuid.New(),
		DueAt:    now.Add(14 * 24 * time.Hour),
	}

	entry, err := circulation.BuildJournalEntry(circulation.CopyCheckedOutEntryType, checkedOut, now)
	assert.NoError(t, err)
	assert.Equal(t, circulation.CopyCheckedOutEntryType, entry.EntryType)
	assert.Equal(t, circulation.ToTimestamp(now), entry.OccurredAt)
	assert.NotEqual(t, uuid.Nil, entry.EntryID)

	decoded, err := circulation.PayloadFromJournalEntry(entry)
	assert.NoError(t, err)

	decodedPayload, ok := decoded.(circulation.CopyCheckedOutPayload)
	assert.True(t, ok)
	assert.Equal(t, checkedOut.LoanID, decodedPayload.LoanID)
	assert.Equal(t, checkedOut.MemberID, decodedPayload.MemberID)
	assert.Equal(t, checkedOut.CopyID, decodedPayload.CopyID)
}

func Test_PayloadFromJournalEntry_RejectsUnknownEntryType(t *testing.T) {
	entry, err := circulation.BuildJournalEntry("CopyTeleported", struct{}{}, time.Now())
	assert.NoError(t, err)

	_, err = circulation.PayloadFromJournalEntry(entry)
	assert.ErrorIs(t, err, circulation.ErrUnknownJournalEntryType)
}

func Test_PayloadFromJournalEntry_DecodesFinePayloads(t *testing.T) {
	fineID := uuid.New()
	loanID := uuid.New()
	now := time.Now()

	testCases := []struct {
		entryType string
		payload   any
	}{
		{circulation.FineAssessedEntryType, circulation.FineAssessedPayload{FineID: fineID, LoanID: loanID, Amount: 15.0}},
		{circulation.FinePaidEntryType, circulation.FinePaidPayload{FineID: fineID, LoanID: loanID, Amount: 15.0}},
		{circulation.FineWaivedEntryType, circulation.FineWaivedPayload{FineID: fineID, LoanID: loanID, Amount: 15.0}},
	}

	for _, tc := range testCases {
		t.Run(tc.entryType, func(t *testing.T) {
			entry, err := circulation.BuildJournalEntry(tc.entryType, tc.payload, now)
			assert.NoError(t, err)

			decoded, err := circulation.PayloadFromJournalEntry(entry)
			assert.NoError(t, err)
			assert.Equal(t, tc.payload, decoded)
		})
	}
}
