// Package store provides durable persistence for statement correlation
// records.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrAlreadyRegistered is returned when a correlation record already exists
// for a statement identity. Registration is create-once: re-registration
// under the same key is a hard failure, never a silent overwrite.
var ErrAlreadyRegistered = errors.New("statement already registered")

// ErrNoPriorSubmission is returned when resolving the latest invocation for
// an execution that has no recorded submissions. Typically user error: a
// LATEST lookup issued before any statement was submitted.
var ErrNoPriorSubmission = errors.New("no prior submission for execution")

// ErrUntrackedStatement is returned when no task token is recorded for a
// statement identity: either the record does not exist or it was registered
// without a resume handle. For completion handling this is unexpected and
// indicates lost correlation state.
var ErrUntrackedStatement = errors.New("no tracked state for statement")

// Record is the durable correlation state for one statement execution.
//
// Records are keyed by (ExecutionARN, InvocationID). A record is created
// exactly once at submission, mutated exactly once at retirement (setting
// ExpiresAt and OutcomeDetails), and removed only by time-based reaping once
// ExpiresAt elapses. A set ExpiresAt signals "retired".
type Record struct {
	// ExecutionARN is the partition portion of the key: the identity of
	// the invoker that submitted the statement.
	ExecutionARN string

	// InvocationID is the sort portion of the key: a decimal-encoded
	// timestamp distinguishing submissions from the same execution.
	InvocationID string

	// SQLStatement is the raw statement text. Required on create; its
	// presence is what the registration guard conditions on.
	SQLStatement string

	// TaskToken is the caller's opaque resume handle. Empty when the
	// submission expects no callback.
	TaskToken string

	// ExpiresAt is the retirement marker in epoch seconds. Zero means the
	// record is still awaiting completion.
	ExpiresAt int64

	// OutcomeDetails is the finished-event payload recorded at retirement.
	OutcomeDetails map[string]interface{}
}

// Store is the correlation store contract.
//
// Implementations must provide:
//   - Conditional creation for Register: exactly the mechanism that gives
//     "register once per identity" its correctness.
//   - Strongly consistent point reads for TaskToken: a stale read would
//     misroute a callback or wrongly report untracked state.
//   - A query over all records sharing an execution ARN consistent enough
//     to compute "latest" deterministically.
//
// Implementations in this package: MemStore (testing, single process),
// SQLiteStore (single-file persistence), MySQLStore (shared deployments).
type Store interface {
	// Register durably creates a correlation record. Fails with
	// ErrAlreadyRegistered if a record already exists for the record's
	// (ExecutionARN, InvocationID) key.
	Register(ctx context.Context, rec Record) error

	// LatestInvocation returns the numerically greatest invocation ID
	// recorded for an execution ARN. Invocation IDs are decimal
	// timestamps and must be compared as numbers: lexicographic
	// comparison would misorder different-length integer parts.
	// Fails with ErrNoPriorSubmission if no records exist.
	LatestInvocation(ctx context.Context, executionARN string) (string, error)

	// TaskToken returns the resume handle recorded for a statement
	// identity. Fails with ErrUntrackedStatement if no record exists or
	// the record carries no task token.
	TaskToken(ctx context.Context, executionARN, invocationID string) (string, error)

	// Retire marks a record as resolved: sets the expiry marker and the
	// finished-event details. Unconditional and idempotent at the
	// storage level; re-retiring overwrites. Retiring an identity with
	// no record is a no-op.
	Retire(ctx context.Context, executionARN, invocationID string, expiresAt int64, details map[string]interface{}) error

	// DeleteExpired removes records whose expiry marker has elapsed and
	// returns how many were deleted. Called by the background reaper;
	// no caller ever issues an explicit per-record delete.
	DeleteExpired(ctx context.Context, now int64) (int, error)
}

// NormalizeNumbers rewrites every numeric value in a payload to an exact
// decimal representation (json.Number) before storage.
//
// The backing key-value stores this design descends from reject
// floating-point-encoded numbers, so payloads are normalized once here and
// the conversion stays transparent to every other component. json.Number
// round-trips through encoding/json as the original decimal text.
func NormalizeNumbers(payload map[string]interface{}) (map[string]interface{}, error) {
	if payload == nil {
		return nil, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var normalized map[string]interface{}
	if err := dec.Decode(&normalized); err != nil {
		return nil, fmt.Errorf("failed to normalize payload: %w", err)
	}
	return normalized, nil
}
