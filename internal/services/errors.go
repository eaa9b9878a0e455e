package services

import "errors"

// Sentinel errors the handlers map onto HTTP status codes with errors.Is.
var (
	// ErrValidation marks bad or missing client input (HTTP 400).
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks an unknown or unauthorized resource (HTTP 404).
	// Ownership mismatches deliberately look identical to missing rows.
	ErrNotFound = errors.New("not found")
)
