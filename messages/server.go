package messages

// Error codes
const (
	ErrCodeInvalidMessage = "INVALID_MESSAGE"
	ErrCodeSessionFailed  = "SESSION_FAILED"
)

// Server message types
const (
	TypeMessage = "message"
	TypeRemove  = "remove"
	TypeStage   = "stage"
	TypeEmotion = "emotion"
	TypeDebug   = "debug"
	TypeAudio   = "audio"
	TypeAlert   = "alert"
	TypeStatus  = "status"
	TypeError   = "error"
)

// ServerMessage represents a view update sent to the browser page
type ServerMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Payload   any    `json:"payload"`
}

// ChatMessagePayload appends one entry to the page's message log
type ChatMessagePayload struct {
	ID          string `json:"id"`
	Author      string `json:"author"` // "user" or "agent"
	Content     string `json:"content"`
	Placeholder bool   `json:"placeholder,omitempty"`
}

// RemovePayload removes one entry, always a placeholder, by id
type RemovePayload struct {
	ID string `json:"id"`
}

// StagePayload sets the lead-stage badge
type StagePayload struct {
	Stage string `json:"stage"`
	Label string `json:"label"`
	Class string `json:"class"`
}

// EmotionPayload sets the emotion label
type EmotionPayload struct {
	Label string `json:"label"`
}

// DebugPayload replaces the debug panel text
type DebugPayload struct {
	Text string `json:"text"`
}

// AudioResponsePayload contains a clip for immediate playback
type AudioResponsePayload struct {
	Data     string `json:"data"`     // Base64-encoded audio
	MimeType string `json:"mimeType"` // "audio/mp3"
}

// AlertPayload is shown to the user outside the message log
type AlertPayload struct {
	Message string `json:"message"`
}

// StatusPayload contains status updates
type StatusPayload struct {
	Status  string `json:"status"` // "connected", "recording", "idle", "pong"
	Message string `json:"message,omitempty"`
}

// ErrorPayload contains error information
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func newServerMessage(typ string, payload any) *ServerMessage {
	return &ServerMessage{Type: typ, Payload: payload}
}

// NewChatMessage creates a message-log append
func NewChatMessage(id, author, content string, placeholder bool) *ServerMessage {
	return newServerMessage(TypeMessage, ChatMessagePayload{
		ID:          id,
		Author:      author,
		Content:     content,
		Placeholder: placeholder,
	})
}

// NewRemoveMessage creates a message-log removal
func NewRemoveMessage(id string) *ServerMessage {
	return newServerMessage(TypeRemove, RemovePayload{ID: id})
}

// NewStageMessage creates a badge update
func NewStageMessage(stage, label, class string) *ServerMessage {
	return newServerMessage(TypeStage, StagePayload{Stage: stage, Label: label, Class: class})
}

// NewEmotionMessage creates an emotion label update
func NewEmotionMessage(label string) *ServerMessage {
	return newServerMessage(TypeEmotion, EmotionPayload{Label: label})
}

// NewDebugMessage creates a debug panel update
func NewDebugMessage(text string) *ServerMessage {
	return newServerMessage(TypeDebug, DebugPayload{Text: text})
}

// NewAudioMessage creates an audio playback message
func NewAudioMessage(data, mimeType string) *ServerMessage {
	return newServerMessage(TypeAudio, AudioResponsePayload{Data: data, MimeType: mimeType})
}

// NewAlertMessage creates a user-visible alert
func NewAlertMessage(message string) *ServerMessage {
	return newServerMessage(TypeAlert, AlertPayload{Message: message})
}

// NewStatusMessage creates a status message
func NewStatusMessage(sessionID, status, message string) *ServerMessage {
	return &ServerMessage{
		Type:      TypeStatus,
		SessionID: sessionID,
		Payload: StatusPayload{
			Status:  status,
			Message: message,
		},
	}
}

// NewErrorMessage creates an error message
func NewErrorMessage(sessionID, code, message string) *ServerMessage {
	return &ServerMessage{
		Type:      TypeError,
		SessionID: sessionID,
		Payload: ErrorPayload{
			Code:    code,
			Message: message,
		},
	}
}
