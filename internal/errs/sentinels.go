// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrUnauthorized indicates failed authentication/authorization.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrBadRequest indicates malformed client input (bad cursor, oversized batch).
	ErrBadRequest = errors.New("bad request")

	// ErrAlreadyExists indicates a unique constraint violation, e.g. two
	// concurrent pushes both inserting the same document id.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidReference indicates a document referenced a row that does
	// not exist (project, status, priority, assignee).
	ErrInvalidReference = errors.New("invalid reference")

	// ErrIntegrity indicates server-held data failed its own wire schema.
	// Surfaced as an internal error, never as a client fault.
	ErrIntegrity = errors.New("data integrity violation")
)
