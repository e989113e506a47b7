package services

import "errors"

var (
	// ErrValidation marks malformed client input; reported to the sender,
	// no state is mutated.
	ErrValidation = errors.New("validation error")

	// ErrSessionNotFound marks events referencing a session that does not
	// exist; rooms are never created implicitly.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionNotActive marks joins to a session that exists but is not
	// accepting participants.
	ErrSessionNotActive = errors.New("session not active")

	// ErrNotInSession marks events that require a completed join handshake.
	ErrNotInSession = errors.New("not in session")
)
