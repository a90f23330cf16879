package util

import "github.com/google/uuid"

// NewID returns an opaque fixed-width identifier. Every entity in the
// system (users, experiments, sessions, session tokens) uses this one id
// shape so identifiers compare with == everywhere.
func NewID() string {
	return uuid.NewString()
}
