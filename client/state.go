// Package client implements the client half of the room protocol: a
// websocket connection plus the local view of a room (notepad, chat log,
// presence) and the rules that reconcile optimistic local edits with
// server broadcasts.
package client

import (
	"sync"
	"time"
)

// dedupeWindow bounds how far apart an optimistic local chat entry and the
// server's broadcast of the same message may be and still be merged.
const dedupeWindow = 2 * time.Second

// Participant mirrors the presence descriptor broadcast by the server.
type Participant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ChatEntry is one message in the local chat log.
type ChatEntry struct {
	From    string    `json:"sender"`
	Message string    `json:"text"`
	Ts      time.Time `json:"ts"`
}

// State is the local view of one room. All methods are safe for concurrent
// use; the socket read loop and the application mutate it from different
// goroutines.
type State struct {
	mu sync.Mutex

	notepad           string
	notepadFromSocket bool

	chat              []ChatEntry
	historyFromSocket bool

	presence []Participant
	voice    []Participant
}

// NewState returns an empty room view.
func NewState() *State {
	return &State{}
}

// SetNotepadLocal records a local edit before it is emitted to the server.
func (s *State) SetNotepadLocal(content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notepad = content
}

// ApplyNotepad applies a server notepad broadcast. The incoming value wins
// unconditionally: the protocol is last-write-wins with no merging.
func (s *State) ApplyNotepad(content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notepad = content
	s.notepadFromSocket = true
}

// SeedNotepad applies a REST-fetched notepad snapshot. It loses to any
// socket-delivered value that has already arrived; both represent state at
// approximately join time, and the socket's is fresher.
func (s *State) SeedNotepad(content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.notepadFromSocket {
		return
	}
	s.notepad = content
}

// AppendLocal records an optimistic chat entry at send time.
func (s *State) AppendLocal(from, message string) ChatEntry {
	entry := ChatEntry{From: from, Message: message, Ts: time.Now()}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chat = append(s.chat, entry)
	return entry
}

// ApplyChatBroadcast merges an incoming chat broadcast into the log. The
// server echoes messages back to their sender, so a broadcast matching an
// existing entry by sender and text within the dedupe window is the echo of
// an optimistic append and is discarded.
func (s *State) ApplyChatBroadcast(entry ChatEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.chat {
		if existing.From == entry.From && existing.Message == entry.Message {
			delta := existing.Ts.Sub(entry.Ts)
			if delta < 0 {
				delta = -delta
			}
			if delta < dedupeWindow {
				return
			}
		}
	}
	s.chat = append(s.chat, entry)
}

// ApplyChatHistory replaces the chat log with the server's join-time replay.
func (s *State) ApplyChatHistory(entries []ChatEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chat = append([]ChatEntry(nil), entries...)
	s.historyFromSocket = true
}

// SeedChatHistory applies REST-fetched history, losing to a socket replay
// that has already arrived.
func (s *State) SeedChatHistory(entries []ChatEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.historyFromSocket {
		return
	}
	s.chat = append([]ChatEntry(nil), entries...)
}

// ApplyPresence replaces the presence list. Presence events are full
// snapshots, never diffs.
func (s *State) ApplyPresence(list []Participant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.presence = append([]Participant(nil), list...)
}

// ApplyVoicePresence replaces the voice presence list.
func (s *State) ApplyVoicePresence(list []Participant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.voice = append([]Participant(nil), list...)
}

// Notepad returns the current notepad content.
func (s *State) Notepad() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notepad
}

// Chat returns a copy of the chat log.
func (s *State) Chat() []ChatEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ChatEntry(nil), s.chat...)
}

// Presence returns a copy of the presence list.
func (s *State) Presence() []Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Participant(nil), s.presence...)
}

// VoicePresence returns a copy of the voice presence list.
func (s *State) VoicePresence() []Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Participant(nil), s.voice...)
}
