package circulation

import (
	"time"
)

// Instead of implementing full value objects, I'm using some alias types and helper methods here ...

// BarcodeString represents the physical barcode printed on a copy
type BarcodeString = string

// LocationString represents an optional shelf/location label
type LocationString = string

// Timestamp represents a point in time recorded by the engine
type Timestamp = time.Time

// ToTimestamp converts a time to a Timestamp with UTC normalization and microsecond precision
func ToTimestamp(t time.Time) Timestamp {
	return t.UTC().Truncate(time.Microsecond)
}
