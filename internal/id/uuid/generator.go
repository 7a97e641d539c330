// Package uuid provides a UUID-backed catalog.IDGenerator.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator produces random UUIDs.
type Generator struct{}

// New returns a Generator.
func New() Generator {
	return Generator{}
}

// NewID returns a new UUIDv4 string.
func (Generator) NewID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate uuid: %w", err)
	}
	return id.String(), nil
}
