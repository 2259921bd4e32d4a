package gateway

import (
	"encoding/json"

	"github.com/studybuddy/backend/internal/session"
)

// Client-origin event names. These are the wire names the web client emits.
const (
	EventJoinRoom      = "joinRoom"
	EventLeaveRoom     = "leaveRoom"
	EventNotepadUpdate = "notepadUpdate"
	EventChatMessage   = "chatMessage"
	EventVoiceJoin     = "voiceJoin"
	EventVoiceLeave    = "voiceLeave"
)

// Server-origin event names.
const (
	EventNotepad       = "notepad"
	EventChatHistory   = "chatHistory"
	EventPresence      = "presence"
	EventVoicePresence = "voicePresence"
)

// Envelope frames every event in both directions: a name plus a payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type joinPayload struct {
	RoomID string              `json:"roomId"`
	User   session.Participant `json:"user"`
}

type roomPayload struct {
	RoomID string `json:"roomId"`
}

type notepadPayload struct {
	RoomID  string `json:"roomId"`
	Content string `json:"content"`
}

type chatPayload struct {
	RoomID  string `json:"roomId"`
	From    string `json:"from"`
	Message string `json:"message"`
}
