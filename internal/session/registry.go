// Package session holds the ephemeral per-room live state: who is present,
// who is on voice, and the current notepad snapshot. The registry is the
// single writer of this state; the gateway funnels every mutation through it.
package session

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/studybuddy/backend/internal/rooms"
	"go.uber.org/zap"
)

var errMissingReader = errors.New("session: room reader is required")

// Participant is the display descriptor a client supplies at join time.
// It is presence data only, never authoritative identity.
type Participant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RoomChange reports one room whose live state changed during a
// connection-wide disconnect sweep.
type RoomChange struct {
	RoomID         string
	Members        []Participant
	Voice          []Participant
	MembersChanged bool
	VoiceChanged   bool
}

type roomSession struct {
	members map[string]Participant
	voice   map[string]Participant
	notepad string
}

// RegistryConfig describes the dependencies of the session registry.
type RegistryConfig struct {
	Reader rooms.Reader
	Logger *zap.Logger
}

// Registry maps room identifiers to live sessions. Sessions are created
// lazily from the room store on first use and live for the process lifetime.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*roomSession
	reader   rooms.Reader
	logger   *zap.Logger
}

// NewRegistry constructs an empty registry backed by the given store reader.
func NewRegistry(cfg RegistryConfig) (*Registry, error) {
	if cfg.Reader == nil {
		return nil, errMissingReader
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		sessions: make(map[string]*roomSession),
		reader:   cfg.Reader,
		logger:   logger,
	}, nil
}

// Hydrate ensures a session exists for the room, seeding the notepad from
// the store. A store read failure or an absent room seeds empty defaults.
// Hydrating an existing session is a no-op: live state is never re-seeded.
func (r *Registry) Hydrate(ctx context.Context, roomID string) {
	r.mu.Lock()
	_, exists := r.sessions[roomID]
	r.mu.Unlock()
	if exists {
		return
	}

	// The store read happens outside the lock; it may block on a slow or
	// unreachable store and must not stall unrelated rooms.
	notepad := ""
	snapshot, ok, err := r.reader.Snapshot(ctx, roomID)
	if err != nil {
		r.logger.Warn("session hydration read failed, seeding defaults",
			zap.String("room_id", roomID), zap.Error(err))
	} else if ok {
		notepad = snapshot.Notepad
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// A concurrent hydration may have won the race; the first session stands.
	if _, exists := r.sessions[roomID]; exists {
		return
	}
	r.sessions[roomID] = &roomSession{
		members: make(map[string]Participant),
		voice:   make(map[string]Participant),
		notepad: notepad,
	}
}

// Join records the connection in the room's presence map, hydrating first,
// and returns the full presence list for broadcast. Re-joining overwrites
// the existing entry.
func (r *Registry) Join(ctx context.Context, roomID, connID string, participant Participant) []Participant {
	r.Hydrate(ctx, roomID)

	r.mu.Lock()
	defer r.mu.Unlock()
	sess := r.sessions[roomID]
	sess.members[connID] = participant
	return presenceOf(sess.members)
}

// Leave removes the connection from the room's presence map. Leaving a room
// the connection never joined is a no-op. Returns the updated presence list.
func (r *Registry) Leave(roomID, connID string) []Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[roomID]
	if !ok {
		return nil
	}
	delete(sess.members, connID)
	return presenceOf(sess.members)
}

// SetNotepad overwrites the session notepad; the most recent writer wins.
// The room is hydrated first so a live session always exists afterwards.
// Durable persistence is the caller's concern.
func (r *Registry) SetNotepad(ctx context.Context, roomID, content string) {
	r.Hydrate(ctx, roomID)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[roomID].notepad = content
}

// Notepad returns the current notepad snapshot, or "" for an unknown room.
func (r *Registry) Notepad(roomID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sess, ok := r.sessions[roomID]; ok {
		return sess.notepad
	}
	return ""
}

// VoiceJoin records the connection in the room's voice map and returns the
// updated voice presence list.
func (r *Registry) VoiceJoin(ctx context.Context, roomID, connID string, participant Participant) []Participant {
	r.Hydrate(ctx, roomID)

	r.mu.Lock()
	defer r.mu.Unlock()
	sess := r.sessions[roomID]
	sess.voice[connID] = participant
	return presenceOf(sess.voice)
}

// VoiceLeave removes the connection from the room's voice map.
func (r *Registry) VoiceLeave(roomID, connID string) []Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[roomID]
	if !ok {
		return nil
	}
	delete(sess.voice, connID)
	return presenceOf(sess.voice)
}

// Presence returns the current presence list for the room.
func (r *Registry) Presence(roomID string) []Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sess, ok := r.sessions[roomID]; ok {
		return presenceOf(sess.members)
	}
	return nil
}

// VoicePresence returns the current voice presence list for the room.
func (r *Registry) VoicePresence(roomID string) []Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sess, ok := r.sessions[roomID]; ok {
		return presenceOf(sess.voice)
	}
	return nil
}

// DisconnectAll removes the connection from every room's presence and voice
// maps, returning only the rooms that actually changed so the caller does
// not broadcast to untouched rooms.
func (r *Registry) DisconnectAll(connID string) []RoomChange {
	r.mu.Lock()
	defer r.mu.Unlock()

	var changes []RoomChange
	for roomID, sess := range r.sessions {
		_, inMembers := sess.members[connID]
		_, inVoice := sess.voice[connID]
		if !inMembers && !inVoice {
			continue
		}
		delete(sess.members, connID)
		delete(sess.voice, connID)
		changes = append(changes, RoomChange{
			RoomID:         roomID,
			Members:        presenceOf(sess.members),
			Voice:          presenceOf(sess.voice),
			MembersChanged: inMembers,
			VoiceChanged:   inVoice,
		})
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].RoomID < changes[j].RoomID })
	return changes
}

// presenceOf copies a presence map into a deterministic slice, ordered by
// connection id so repeated broadcasts of the same state are identical.
func presenceOf(entries map[string]Participant) []Participant {
	connIDs := make([]string, 0, len(entries))
	for connID := range entries {
		connIDs = append(connIDs, connID)
	}
	sort.Strings(connIDs)

	list := make([]Participant, 0, len(connIDs))
	for _, connID := range connIDs {
		list = append(list, entries[connID])
	}
	return list
}
