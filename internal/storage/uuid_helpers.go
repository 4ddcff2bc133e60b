// Package storage - UUID helpers
//
// Thin wrappers over github.com/google/uuid shared by the engine's UUID()
// scalar functions and the importer's id-typed columns.
package storage

import (
	"fmt"

	"github.com/google/uuid"
)

// NewUUIDString returns a fresh random (version 4) UUID in canonical text
// form.
func NewUUIDString() string {
	return uuid.NewString()
}

// ParseUUID parses a UUID string into uuid.UUID.
func ParseUUID(s string) (uuid.UUID, error) {
	return uuid.Parse(s)
}

// UUIDToBytes returns the 16-byte representation of a uuid.UUID.
func UUIDToBytes(u uuid.UUID) []byte {
	return u[:]
}

// UUIDFromBytes rebuilds a uuid.UUID from its 16-byte form.
func UUIDFromBytes(b []byte) (uuid.UUID, error) {
	if len(b) != 16 {
		return uuid.UUID{}, fmt.Errorf("uuid: need 16 bytes, got %d", len(b))
	}
	return uuid.FromBytes(b)
}
