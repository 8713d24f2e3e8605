package tasks

import (
	"encoding/json"
	"fmt"
)

// mustJSON marshals a task payload literal built from known Go values — a
// marshal failure here means a bug in this package, not bad input, so it
// panics rather than threading an error through every enqueue call site.
func mustJSON(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("tasks: marshal payload: %v", err))
	}
	return raw
}
