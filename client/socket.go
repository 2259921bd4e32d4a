package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Event names shared with the gateway's wire protocol.
const (
	eventJoinRoom      = "joinRoom"
	eventLeaveRoom     = "leaveRoom"
	eventNotepadUpdate = "notepadUpdate"
	eventChatMessage   = "chatMessage"
	eventVoiceJoin     = "voiceJoin"
	eventVoiceLeave    = "voiceLeave"

	eventNotepad       = "notepad"
	eventChatHistory   = "chatHistory"
	eventPresence      = "presence"
	eventVoicePresence = "voicePresence"
)

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Socket is a connected room client. It emits the room protocol's events
// and feeds incoming broadcasts into its State.
type Socket struct {
	roomID string
	user   Participant
	state  *State

	writeMu sync.Mutex
	conn    *websocket.Conn

	done chan struct{}
}

// Dial connects to a gateway websocket endpoint, joins the room, and starts
// the read loop. The caller owns Close.
func Dial(ctx context.Context, url, roomID string, user Participant) (*Socket, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", url, err)
	}

	s := &Socket{
		roomID: roomID,
		user:   user,
		state:  NewState(),
		conn:   conn,
		done:   make(chan struct{}),
	}

	if err := s.emit(eventJoinRoom, map[string]any{"roomId": roomID, "user": user}); err != nil {
		_ = conn.Close()
		return nil, err
	}

	go s.readLoop()
	return s, nil
}

// State exposes the reconciled local view of the room.
func (s *Socket) State() *State {
	return s.state
}

// SendChat appends an optimistic local entry and emits the message.
func (s *Socket) SendChat(message string) error {
	s.state.AppendLocal(s.user.Name, message)
	return s.emit(eventChatMessage, map[string]string{
		"roomId":  s.roomID,
		"from":    s.user.Name,
		"message": message,
	})
}

// UpdateNotepad records the edit locally and emits it.
func (s *Socket) UpdateNotepad(content string) error {
	s.state.SetNotepadLocal(content)
	return s.emit(eventNotepadUpdate, map[string]string{
		"roomId":  s.roomID,
		"content": content,
	})
}

// JoinVoice announces this client on the room's voice channel.
func (s *Socket) JoinVoice() error {
	return s.emit(eventVoiceJoin, map[string]any{"roomId": s.roomID, "user": s.user})
}

// LeaveVoice withdraws this client from the room's voice channel.
func (s *Socket) LeaveVoice() error {
	return s.emit(eventVoiceLeave, map[string]string{"roomId": s.roomID})
}

// Close leaves the room and tears down the connection.
func (s *Socket) Close() error {
	_ = s.emit(eventLeaveRoom, map[string]string{"roomId": s.roomID})
	err := s.conn.Close()
	<-s.done
	return err
}

func (s *Socket) emit(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("client: marshal %s: %w", event, err)
	}
	frame, err := json.Marshal(envelope{Event: event, Data: data})
	if err != nil {
		return fmt.Errorf("client: marshal envelope: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("client: emit %s: %w", event, err)
	}
	return nil
}

func (s *Socket) readLoop() {
	defer close(s.done)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		var frame envelope
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		s.dispatch(frame)
	}
}

func (s *Socket) dispatch(frame envelope) {
	switch frame.Event {
	case eventNotepad:
		var content string
		if json.Unmarshal(frame.Data, &content) == nil {
			s.state.ApplyNotepad(content)
		}
	case eventChatHistory:
		var history []ChatEntry
		if json.Unmarshal(frame.Data, &history) == nil {
			s.state.ApplyChatHistory(history)
		}
	case eventChatMessage:
		var entry ChatEntry
		if json.Unmarshal(frame.Data, &entry) == nil {
			s.state.ApplyChatBroadcast(entry)
		}
	case eventPresence:
		var list []Participant
		if json.Unmarshal(frame.Data, &list) == nil {
			s.state.ApplyPresence(list)
		}
	case eventVoicePresence:
		var list []Participant
		if json.Unmarshal(frame.Data, &list) == nil {
			s.state.ApplyVoicePresence(list)
		}
	}
}
