package emit

// NullEmitter implements Emitter by discarding all events.
//
// Use cases:
//   - Deployments where event logging is not desired
//   - Tests that don't assert on events
type NullEmitter struct{}

// NewNullEmitter creates a new NullEmitter.
//
// Returns a NullEmitter that discards all events without any processing.
// Safe for concurrent use with zero overhead.
func NewNullEmitter() *NullEmitter {
	return &NullEmitter{}
}

// Emit discards the event without any processing.
func (n *NullEmitter) Emit(event Event) {
	// No-op: discard the event
}
