// Package warehouse defines the boundary to the external query execution
// service that runs statements asynchronously.
//
// The relay never talks SQL wire protocol itself; it submits statement text
// through a Client and the warehouse executes out-of-band, reporting
// completion through the notification transport. Describe and result
// payloads are passed through to callers untouched.
package warehouse

import (
	"context"
	"errors"
	"fmt"
)

// State is a statement execution state reported by the warehouse.
type State string

// Statement execution states. The first three are the non-terminal
// "in-flight" states the singleton guard scans.
const (
	StateSubmitted State = "SUBMITTED"
	StatePicked    State = "PICKED"
	StateStarted   State = "STARTED"
	StateFinished  State = "FINISHED"
	StateFailed    State = "FAILED"
	StateAborted   State = "ABORTED"

	// StateAll is the list filter matching every state.
	StateAll State = "ALL"
)

// ActiveStates returns the non-terminal states in which a statement is
// considered in flight.
func ActiveStates() []State {
	return []State{StateSubmitted, StatePicked, StateStarted}
}

// StatementSummary is one entry of a statement listing.
type StatementSummary struct {
	ID          string
	Name        string
	QueryString string
	State       State
}

// Client is the narrow interface to the warehouse execution service.
//
// Describe, result, and cancel responses are opaque payloads forwarded to
// the caller as-is; the relay interprets none of their fields. Implement
// against the real service in production and use MockClient in tests.
type Client interface {
	// ExecuteStatement submits statement text for asynchronous execution
	// under the given statement name. withEvent requests an event-based
	// completion notification; the relay sets it iff a task token was
	// supplied with the submission.
	ExecuteStatement(ctx context.Context, sql, statementName string, withEvent bool) (map[string]interface{}, error)

	// DescribeStatement returns the warehouse's description of a
	// statement execution.
	DescribeStatement(ctx context.Context, id string) (map[string]interface{}, error)

	// GetStatementResult returns a page of statement results. nextToken
	// is the warehouse's own pagination cursor; empty requests the first
	// page.
	GetStatementResult(ctx context.Context, id, nextToken string) (map[string]interface{}, error)

	// CancelStatement requests cancellation of a running statement.
	CancelStatement(ctx context.Context, id string) (map[string]interface{}, error)

	// ListStatements enumerates statement executions filtered by state
	// and, optionally, by exact statement name (empty matches all).
	ListStatements(ctx context.Context, status State, statementName string) ([]StatementSummary, error)
}

// ErrStatementNotFound is returned when a statement name resolves to no
// execution in the warehouse.
var ErrStatementNotFound = errors.New("no statement found for name")

// StatementIDForName translates a statement name into the warehouse's own
// statement identifier.
//
// Statement names minted by the relay are unique per submission, so the
// listing must return exactly one match; anything else indicates the name
// was reused outside the relay and is an error.
func StatementIDForName(ctx context.Context, c Client, statementName string) (string, error) {
	statements, err := c.ListStatements(ctx, StateAll, statementName)
	if err != nil {
		return "", fmt.Errorf("failed to list statements for %q: %w", statementName, err)
	}
	if len(statements) == 0 {
		return "", fmt.Errorf("%w: %q", ErrStatementNotFound, statementName)
	}
	if len(statements) != 1 {
		return "", fmt.Errorf("expected 1 statement for %q, got %d", statementName, len(statements))
	}
	return statements[0].ID, nil
}
