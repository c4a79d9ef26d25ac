// Package uuidx creates the time-ordered identifiers used for events and
// schedules.
package uuidx

import "github.com/google/uuid"

// New returns a version 7 UUID. Ids created later sort after ids created
// earlier, so event ids follow publication order. It panics when the
// random source fails.
func New() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// NewString is New rendered in the canonical 36 character form.
func NewString() string {
	return New().String()
}
