package messages

import "encoding/json"

// LeadStage is the sales-funnel classification returned by the agent
type LeadStage string

const (
	LeadCold   LeadStage = "cold"
	LeadWarm   LeadStage = "warm"
	LeadHot    LeadStage = "hot"
	LeadClosed LeadStage = "closed"
)

// Valid reports whether s is one of the four known stages
func (s LeadStage) Valid() bool {
	switch s {
	case LeadCold, LeadWarm, LeadHot, LeadClosed:
		return true
	}
	return false
}

// Multipart form fields of POST /chat/
const (
	FieldSessionID = "session_id"
	FieldMessage   = "message"
	FieldAudioFile = "audio_file"

	AudioFileName = "user_audio.wav"
	AudioMimeType = "audio/wav"

	// ReplyAudioMimeType is how returned clips are encoded
	ReplyAudioMimeType = "audio/mp3"
)

// AgentResponse is the JSON body returned by the agent for one turn
type AgentResponse struct {
	Reply        string          `json:"reply"`
	LeadStage    LeadStage       `json:"lead_stage"`
	Emotion      string          `json:"emotion"`
	Memory       json.RawMessage `json:"memory"`
	Audio        string          `json:"audio,omitempty"` // Base64-encoded mp3, empty when TTS failed
	DetectedLang string          `json:"detected_lang,omitempty"`
}

// HasAudio reports whether the response carries a playable clip
func (r *AgentResponse) HasAudio() bool {
	return r.Audio != ""
}

// AgentError is the body the agent returns on 4xx/5xx
type AgentError struct {
	Error string `json:"error"`
}
