package relay

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Statement names reuse the workflow execution ARN when the invocation comes
// from the workflow engine. No assumption is made about the ARN partition,
// but the service and action segments are checked. Segment positions within
// the serialized name:
const (
	arnIdx          = 0
	partitionIdx    = 1
	serviceIdx      = 2
	regionIdx       = 3
	accountIdx      = 4
	actionIdx       = 5
	machineNameIdx  = 6
	executionIdx    = 7
	invocationIDIdx = 8 // trailing segment appended at mint time
)

const (
	arnPrefix       = "arn"
	statesService   = "states"
	executionAction = "execution"
)

// invocationWindow bounds how far an invocation marker may lie from "now"
// before it stops being recognized as a marker. This keeps arbitrary numeric
// strings from classifying as invocation IDs.
const invocationWindow = 52 * 7 * 24 * time.Hour

// StatementIdentity is the structured, parseable name assigned to a statement
// execution. It encodes lineage: which execution issued the statement
// (ExecutionARN) and when (InvocationID, a decimal Unix timestamp with
// sub-second precision).
//
// Identities are minted once at submission and immutable thereafter. They are
// derived values, never stored objects: the serialized form travels to the
// warehouse as the statement name and comes back verbatim in completion
// notifications, where parsing recovers the original identity.
type StatementIdentity struct {
	// ExecutionARN identifies the invoker. Either a genuine workflow
	// execution ARN or a synthesized ad-hoc reference of the form
	// arn:::{region}::custom_invocation:{uuid}.
	ExecutionARN string

	// InvocationID is a decimal-encoded Unix timestamp distinguishing
	// repeated submissions from the same execution.
	InvocationID string
}

// NewInvocationID returns a fresh invocation marker: the current time as a
// decimal Unix timestamp with microsecond precision.
func NewInvocationID() string {
	return formatInvocationID(time.Now().UTC())
}

func formatInvocationID(t time.Time) string {
	return strconv.FormatFloat(float64(t.UnixMicro())/1e6, 'f', 6, 64)
}

// InvocationTime converts an invocation marker back to a point in time.
// Returns an error if the candidate does not parse as a decimal timestamp.
func InvocationTime(invocationID string) (time.Time, error) {
	seconds, err := strconv.ParseFloat(invocationID, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid invocation id %q: %w", invocationID, err)
	}
	return time.UnixMicro(int64(seconds * 1e6)).UTC(), nil
}

// IsInvocationID reports whether candidate looks like an invocation marker:
// it parses as a decimal timestamp and lies strictly within one year of now
// in both directions. Used to validate markers at construction and to
// classify the trailing segment of arbitrary statement names.
func IsInvocationID(candidate string) bool {
	return isInvocationIDAt(candidate, time.Now().UTC())
}

func isInvocationIDAt(candidate string, now time.Time) bool {
	t, err := InvocationTime(candidate)
	if err != nil {
		return false
	}
	return now.Add(-invocationWindow).Before(t) && t.Before(now.Add(invocationWindow))
}

// NewIdentity builds a StatementIdentity from its parts, validating the
// invocation marker. Construction with an out-of-window marker is a
// programming error surfaced to the caller.
func NewIdentity(executionARN, invocationID string) (StatementIdentity, error) {
	if !IsInvocationID(invocationID) {
		return StatementIdentity{}, fmt.Errorf("%w: invalid invocation id %q", ErrInvalidRequest, invocationID)
	}
	return StatementIdentity{ExecutionARN: executionARN, InvocationID: invocationID}, nil
}

// Mint creates the identity for a new submission.
//
// If executionARN is empty the invocation is ad-hoc: an execution reference
// is synthesized from the deployment region and a fresh random token. The
// invocation marker is always "now".
func Mint(executionARN, region string) StatementIdentity {
	if executionARN == "" {
		executionARN = fmt.Sprintf("arn:::%s::custom_invocation:%s", region, uuid.New().String())
	}
	return StatementIdentity{
		ExecutionARN: executionARN,
		InvocationID: NewInvocationID(),
	}
}

// String returns the canonical serialized form used as the warehouse
// statement name: executionARN + ":" + invocationID. ParseStatementName is
// its exact inverse for workflow-driven names.
func (s StatementIdentity) String() string {
	return s.ExecutionARN + ":" + s.InvocationID
}

// IsWorkflowDriven reports whether this identity was minted from a genuine
// workflow execution ARN. It re-derives the serialized form and re-applies
// the structural classification, so it always agrees with how
// ParseStatementName would classify the same name.
func (s StatementIdentity) IsWorkflowDriven() bool {
	return isWorkflowStatementName(s.String())
}

func isWorkflowStatementName(name string) bool {
	parts := strings.Split(name, ":")
	if len(parts) <= invocationIDIdx {
		return false
	}
	return parts[arnIdx] == arnPrefix &&
		parts[serviceIdx] == statesService &&
		parts[actionIdx] == executionAction &&
		IsInvocationID(parts[invocationIDIdx])
}

// ParseStatementName recovers a StatementIdentity from a serialized statement
// name.
//
// The second return value reports whether the name was minted by the
// workflow integration. False is a normal, expected branch, not an error:
// statements submitted outside this integration (or ad-hoc through it) carry
// names that do not match the workflow-driven pattern and are simply not
// tracked.
func ParseStatementName(name string) (StatementIdentity, bool) {
	if !isWorkflowStatementName(name) {
		return StatementIdentity{}, false
	}
	parts := strings.Split(name, ":")
	return StatementIdentity{
		ExecutionARN: strings.Join(parts[:invocationIDIdx], ":"),
		InvocationID: parts[invocationIDIdx],
	}, true
}
