// Package emit provides pluggable observability for the statement relay.
package emit

// Event represents an observability event emitted while handling a relay
// request.
//
// Events provide insight into correlation behavior:
//   - Statement submission and registration
//   - Completion notification resolution
//   - Dropped untracked notifications
//   - Benign duplicate deliveries
//   - Record retirement and reaping
//
// Events are emitted to an Emitter which can log to stdout, create
// OpenTelemetry spans, or discard them.
type Event struct {
	// Statement is the serialized statement name this event concerns.
	// Empty for events not tied to a single statement.
	Statement string

	// Msg is a short machine-friendly event name, e.g. "submission_registered",
	// "notification_dropped", "task_already_resolved".
	Msg string

	// Meta contains additional structured data specific to this event.
	// Common keys:
	//   - "executionArn": originating execution reference
	//   - "error": error details
	//   - "state": reported terminal state
	//   - "deleted": reaped record count
	Meta map[string]interface{}
}
