package relay

import "errors"

// ErrInvalidRequest indicates a request that does not adhere to the relay
// API: unknown action values, missing required fields, or malformed shapes.
// Surfaced to the caller; never retried internally.
var ErrInvalidRequest = errors.New("invalid request")

// ErrConcurrentExecution indicates a singleton submission was rejected
// because a statement with identical text is already in a non-terminal
// state in the warehouse. Raised before any correlation state is written.
var ErrConcurrentExecution = errors.New("statement already has an active execution")

// ErrUnsupportedOutcome indicates a completion notification reported a
// terminal state other than FINISHED or FAILED. The warehouse is not
// expected to report other terminal states for this integration.
var ErrUnsupportedOutcome = errors.New("unsupported finished-event state")
