package auction

import (
	"github.com/google/uuid"
)

// RoundIDGenerator produces round identifiers.
// Implemented by UUIDv7Generator, testutil.FixedIDs and testutil.SequentialIDs.
type RoundIDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 round ids, so round
// history sorts by creation time. Stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate returns a hyphenated UUIDv7. Panics if the random source fails.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
