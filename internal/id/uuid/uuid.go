// Package uuid provides run and request ID generation.
package uuid

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Generator creates time-ordered UUID v7 strings so run IDs sort by start time.
type Generator struct{}

// New creates a new Generator.
func New() *Generator {
	return &Generator{}
}

// NewID returns a UUID7 string.
func (Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return id.String(), nil
}

// NewRequestID returns a compact random ID for correlating HTTP requests.
// It never fails; on entropy errors it falls back to the nil UUID.
func (Generator) NewRequestID() string {
	id, err := uuid.NewRandom()
	if err != nil {
		return strings.ReplaceAll(uuid.Nil.String(), "-", "")
	}
	return strings.ReplaceAll(id.String(), "-", "")
}
