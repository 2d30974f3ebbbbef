package core

import "github.com/google/uuid"

// NewID returns a random identifier for history entries.
func NewID() string {
	return uuid.NewString()
}
