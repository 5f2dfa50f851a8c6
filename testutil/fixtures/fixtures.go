// Package fixtures produces deterministic sample data for tests and demos.
// It is pure: calling a builder never touches storage or global state.
package fixtures

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/goldenoaks/circulation-go/circulation"
)

// Namespace for deterministic ids, so fixture data is stable across runs.
var fixtureNamespace = uuid.MustParse("b7a9e0d2-4f60-44c1-9a3e-7d1f2ab0c8e5")

// MemberID returns the deterministic id for the n-th sample member.
func MemberID(n int) uuid.UUID {
	return uuid.NewSHA1(fixtureNamespace, []byte(fmt.Sprintf("member-%d", n)))
}

// BookID returns the deterministic id for the n-th sample book.
func BookID(n int) uuid.UUID {
	return uuid.NewSHA1(fixtureNamespace, []byte(fmt.Sprintf("book-%d", n)))
}

// SampleCopy returns the deterministic n-th sample copy, available, with a
// readable barcode.
func SampleCopy(n int) circulation.Copy {
	return circulation.Copy{
		CopyID:   uuid.NewSHA1(fixtureNamespace, []byte(fmt.Sprintf("copy-%d", n))),
		BookID:   BookID(n),
		Barcode:  fmt.Sprintf("GO-%06d", n),
		Status:   circulation.StatusAvailable,
		Location: fmt.Sprintf("Shelf %c%d", 'A'+rune(n%6), n%40),
	}
}

// SampleCopies returns count sample copies, numbered from 1.
func SampleCopies(count int) []circulation.Copy {
	copies := make([]circulation.Copy, 0, count)

	for n := 1; n <= count; n++ {
		copies = append(copies, SampleCopy(n))
	}

	return copies
}

// SampleMemberIDs returns count sample member ids, numbered from 1.
func SampleMemberIDs(count int) []uuid.UUID {
	members := make([]uuid.UUID, 0, count)

	for n := 1; n <= count; n++ {
		members = append(members, MemberID(n))
	}

	return members
}
