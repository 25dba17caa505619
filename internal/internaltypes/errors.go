// Package internaltypes holds errors shared by adapters that do not belong to
// the booking domain.
package internaltypes

import "errors"

var (
	// ErrUnauthorized is returned when operator credentials do not match.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotFound is returned when a row to update does not exist in the expected state.
	ErrNotFound = errors.New("not found")
)
