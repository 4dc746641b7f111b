package widget

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/room4-2/leadchat/messages"
)

// Fixed texts shown by the widget
const (
	WelcomeText       = "🤖 Welcome! I'm your AI sales assistant. You can type or speak your question."
	PlaceholderText   = "Sales Agent is processing..."
	ErrorText         = "Error contacting server."
	RecordingText     = "🎤 Recording..."
	SpokeText         = "🎤 You spoke..."
	MicUnavailableMsg = "Microphone not available. Check that a recording device is connected and allowed."
)

// Author of a log entry
type Author string

const (
	AuthorUser  Author = "user"
	AuthorAgent Author = "agent"
)

// Message is one entry of the conversation log
type Message struct {
	ID          string
	Author      Author
	Content     string
	Placeholder bool
	At          time.Time
}

// Log is the append-only conversation log. The only removal allowed is of a
// placeholder, addressed by id.
type Log struct {
	messages []Message
}

// Append adds m at the end
func (l *Log) Append(m Message) {
	l.messages = append(l.messages, m)
}

// RemovePlaceholder deletes the placeholder with id. It reports false, and
// leaves the log untouched, when id is unknown or not a placeholder.
func (l *Log) RemovePlaceholder(id string) bool {
	for i, m := range l.messages {
		if m.ID != id {
			continue
		}
		if !m.Placeholder {
			return false
		}
		l.messages = append(l.messages[:i], l.messages[i+1:]...)
		return true
	}
	return false
}

// Messages returns a copy of the log
func (l *Log) Messages() []Message {
	return append([]Message(nil), l.messages...)
}

// Len returns the number of entries
func (l *Log) Len() int {
	return len(l.messages)
}

// ConversationState is derived from the latest successful reply and replaced
// wholesale on every reply
type ConversationState struct {
	LeadStage messages.LeadStage
	Emotion   string
	Memory    json.RawMessage
}

// Badge is the visual state of the lead-stage indicator
type Badge struct {
	Stage messages.LeadStage
	Label string
	Class string
}

// BadgeFor maps a stage to its badge. Anything that is not cold, warm or hot
// renders as closed.
func BadgeFor(stage messages.LeadStage) Badge {
	class := "stage-closed"
	switch stage {
	case messages.LeadCold:
		class = "stage-cold"
	case messages.LeadWarm:
		class = "stage-warm"
	case messages.LeadHot:
		class = "stage-hot"
	}
	return Badge{
		Stage: stage,
		Label: "Lead: " + string(stage),
		Class: class,
	}
}

// EmotionLabel formats the emotion indicator
func EmotionLabel(emotion string) string {
	return "Emotion: " + emotion
}

// FormatMemory pretty-prints the agent's memory payload with two-space
// indentation, keeping key order as sent
func FormatMemory(memory json.RawMessage) string {
	raw := bytes.TrimSpace(memory)
	if len(raw) == 0 {
		return "null"
	}
	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		return strings.TrimSpace(string(raw))
	}
	return out.String()
}

// Surface is a presentation target for the conversation. Calls arrive from
// the controller's loop, one at a time.
type Surface interface {
	AppendMessage(m Message)
	RemoveMessage(id string)
	SetBadge(b Badge)
	SetEmotion(label string)
	SetDebug(text string)
	SetRecording(recording bool)
	Alert(text string)
}

// Snapshot is a point-in-time copy of a controller's view state
type Snapshot struct {
	SessionID   string
	Messages    []Message
	State       ConversationState
	HasState    bool
	Recording   bool
	InFlight    bool
	QueuedTurns int
}

// Placeholders returns how many placeholder entries the snapshot holds
func (s Snapshot) Placeholders() int {
	n := 0
	for _, m := range s.Messages {
		if m.Placeholder {
			n++
		}
	}
	return n
}
