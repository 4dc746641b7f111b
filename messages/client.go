package messages

import "encoding/json"

// Client message types
const (
	TypeClientText    = "text"
	TypeClientControl = "control"
)

// Control actions
const (
	ActionToggleRecording = "toggle_recording"
	ActionPing            = "ping"
)

// ClientMessage represents a message from the browser page
type ClientMessage struct {
	Type    string          `json:"type"` // "text", "control"
	Payload json.RawMessage `json:"payload"`
}

// TextPayload carries a typed user message
type TextPayload struct {
	Text string `json:"text"`
}

// ControlPayload contains control commands
type ControlPayload struct {
	Action string `json:"action"` // "toggle_recording", "ping"
}
