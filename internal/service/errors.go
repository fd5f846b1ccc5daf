package service

import "errors"

// Error taxonomy surfaced to the transport layer. Validation and busy
// errors occur before any inference cost; tool failures are recovered
// inside the tools and never reach here.
var (
	// ErrValidation marks a malformed request (blank session id or
	// message, out-of-range parameters). No side effects have occurred.
	ErrValidation = errors.New("validation failed")

	// ErrSessionBusy marks a second chat request for a session whose
	// generation is still in flight.
	ErrSessionBusy = errors.New("session busy")

	// ErrSessionNotFound marks a session that does not exist or that the
	// caller may not access. The two cases are indistinguishable on
	// purpose: session ids must not be probeable.
	ErrSessionNotFound = errors.New("session not found")
)
