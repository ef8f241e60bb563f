// Package ids generates identifiers for templates, molecules and atoms.
package ids

import "github.com/google/uuid"

// Generator produces unique string identifiers.
// Implemented by UUIDv7 (production) and Sequence (tests).
type Generator interface {
	Generate() string
}

// UUIDv7 generates time-sortable UUIDv7 identifiers, so molecules created
// in one materialization pass sort in creation order.
//
// Thread-safety: UUIDv7 is stateless and safe for concurrent use.
type UUIDv7 struct{}

// Generate returns a new hyphenated UUIDv7.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
