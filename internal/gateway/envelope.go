package gateway

import (
	"encoding/json"
	"fmt"
)

// Envelope is the wire frame exchanged with browser clients: a named
// event plus an arbitrary JSON payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func encodeFrame(event string, data any) ([]byte, error) {
	env := Envelope{Event: event}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", event, err)
		}
		env.Data = raw
	}
	frame, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s frame: %w", event, err)
	}
	return frame, nil
}
