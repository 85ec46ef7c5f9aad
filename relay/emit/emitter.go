package emit

// Emitter receives and processes observability events from the relay.
//
// Implementations should be:
//   - Non-blocking: avoid slowing down request handling
//   - Thread-safe: may be called concurrently
//   - Resilient: handle backend failures without crashing the relay
//
// Emit must not panic; errors should be handled internally.
type Emitter interface {
	// Emit sends an observability event to the configured backend.
	Emit(event Event)
}
