package relay

import (
	"encoding/json"
	"fmt"
)

// Sanitize makes sure a response is a plain JSON-serializable structure
// before it is returned to the caller.
//
// The value is round-tripped through encoding/json, which renders time.Time
// values in ISO-8601 (RFC 3339) text form — the single special-case
// conversion this boundary performs. Anything that cannot be marshaled is a
// programming error surfaced to the caller.
func Sanitize(v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("response is not JSON-serializable: %w", err)
	}
	var sanitized interface{}
	if err := json.Unmarshal(raw, &sanitized); err != nil {
		return nil, fmt.Errorf("failed to rebuild sanitized response: %w", err)
	}
	return sanitized, nil
}
