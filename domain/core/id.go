package core

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ID represents a domain identifier
type ID string

// NewID creates a new unique identifier using UUID v7 for time-ordered generation
func NewID() ID {
	id, err := uuid.NewV7()
	if err != nil {
		// Fallback to v4 if v7 fails
		id = uuid.New()
	}
	return ID(id.String())
}

// String returns the string representation
func (id ID) String() string {
	return string(id)
}

// IsEmpty checks if the ID is empty
func (id ID) IsEmpty() bool {
	return id == ""
}

// Domain-specific ID types
type (
	SubmissionID ID
	RoundID      ID
	UserID       ID
)

// String conversions for domain IDs
func (id SubmissionID) String() string { return ID(id).String() }
func (id RoundID) String() string      { return ID(id).String() }
func (id UserID) String() string       { return ID(id).String() }

// ParseSubmissionID parses a string into SubmissionID
func ParseSubmissionID(s string) (SubmissionID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("submission ID cannot be empty")
	}
	return SubmissionID(s), nil
}

// RoundKey identifies one round of one tournament. Datasets and cluster
// assignments are shared by every submission carrying the same key.
type RoundKey struct {
	Tournament int
	Round      int
}

func (k RoundKey) String() string {
	return fmt.Sprintf("t%d/r%d", k.Tournament, k.Round)
}
