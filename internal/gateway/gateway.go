// Package gateway owns the realtime event channel: it translates
// client-origin events into session registry mutations, fans the results out
// to every connection in the affected room, and persists notepad and chat
// mutations to the room store on a best-effort basis.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/studybuddy/backend/internal/rooms"
	"github.com/studybuddy/backend/internal/session"
	"go.uber.org/zap"
)

var (
	errMissingRegistry = errors.New("gateway: session registry is required")
	errMissingStore    = errors.New("gateway: room store is required")
)

// RoomStore is the slice of the durable store the gateway needs. Reads seed
// join replies; writes are fire-and-forget.
type RoomStore interface {
	rooms.Reader
	rooms.NotepadWriter
	rooms.MessageAppender
}

// Dependencies wires the gateway's collaborators.
type Dependencies struct {
	Registry *session.Registry
	Store    RoomStore
	Logger   *zap.Logger
	Clock    func() time.Time
}

// Gateway dispatches realtime events for all connected clients. Each
// event's state mutation and its broadcast run as one atomic step under
// dispatchMu, so every connection in a room observes events in the same
// order they were dispatched. Store reads and writes stay outside that
// critical section: a slow store must never stall the live room.
type Gateway struct {
	dispatchMu sync.Mutex
	hub        *hub
	registry   *session.Registry
	store      RoomStore
	logger     *zap.Logger
	clock      func() time.Time
}

// New constructs a Gateway.
func New(deps Dependencies) (*Gateway, error) {
	if deps.Registry == nil {
		return nil, errMissingRegistry
	}
	if deps.Store == nil {
		return nil, errMissingStore
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Gateway{
		hub:      newHub(),
		registry: deps.Registry,
		store:    deps.Store,
		logger:   logger,
		clock:    clock,
	}, nil
}

// HandleEvent dispatches one decoded client event. Malformed payloads are
// logged and dropped; a bad event must never take down the connection's
// read loop.
func (g *Gateway) HandleEvent(ctx context.Context, conn Conn, envelope Envelope) {
	switch envelope.Event {
	case EventJoinRoom:
		g.handleJoin(ctx, conn, envelope.Data)
	case EventLeaveRoom:
		g.handleLeave(conn, envelope.Data)
	case EventNotepadUpdate:
		g.handleNotepadUpdate(ctx, conn, envelope.Data)
	case EventChatMessage:
		g.handleChatMessage(ctx, conn, envelope.Data)
	case EventVoiceJoin:
		g.handleVoiceJoin(ctx, conn, envelope.Data)
	case EventVoiceLeave:
		g.handleVoiceLeave(conn, envelope.Data)
	default:
		g.logger.Debug("unknown event dropped",
			zap.String("event", envelope.Event), zap.String("conn_id", conn.ID()))
	}
}

// HandleDisconnect sweeps the connection out of every room it occupied and
// notifies only the rooms whose state changed.
func (g *Gateway) HandleDisconnect(conn Conn) {
	g.dispatchMu.Lock()
	defer g.dispatchMu.Unlock()

	changes := g.registry.DisconnectAll(conn.ID())
	g.hub.dropAll(conn.ID())
	for _, change := range changes {
		if change.MembersChanged {
			g.hub.broadcast(change.RoomID, "", EventPresence, change.Members)
		}
		if change.VoiceChanged {
			g.hub.broadcast(change.RoomID, "", EventVoicePresence, change.Voice)
		}
	}
}

func (g *Gateway) handleJoin(ctx context.Context, conn Conn, data json.RawMessage) {
	var payload joinPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.RoomID == "" {
		g.logger.Warn("bad join payload", zap.String("conn_id", conn.ID()), zap.Error(err))
		return
	}

	// Hydration and the history read may block on the store; both happen
	// before the dispatch section. The replay is best-effort: a store
	// failure downgrades the join reply, it never fails the join.
	g.registry.Hydrate(ctx, payload.RoomID)
	var history []rooms.ChatMessage
	snapshot, ok, err := g.store.Snapshot(ctx, payload.RoomID)
	if err != nil {
		g.logger.Warn("join history read failed",
			zap.String("room_id", payload.RoomID), zap.Error(err))
	} else if ok {
		history = snapshot.Messages
	}

	g.dispatchMu.Lock()
	defer g.dispatchMu.Unlock()

	presence := g.registry.Join(ctx, payload.RoomID, conn.ID(), payload.User)
	g.hub.join(payload.RoomID, conn)

	conn.Send(EventNotepad, g.registry.Notepad(payload.RoomID))
	if history != nil {
		conn.Send(EventChatHistory, history)
	}
	g.hub.broadcast(payload.RoomID, "", EventPresence, presence)
}

func (g *Gateway) handleLeave(conn Conn, data json.RawMessage) {
	var payload roomPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.RoomID == "" {
		g.logger.Warn("bad leave payload", zap.String("conn_id", conn.ID()), zap.Error(err))
		return
	}

	g.dispatchMu.Lock()
	defer g.dispatchMu.Unlock()

	presence := g.registry.Leave(payload.RoomID, conn.ID())
	g.hub.leave(payload.RoomID, conn.ID())
	g.hub.broadcast(payload.RoomID, "", EventPresence, presence)
}

func (g *Gateway) handleNotepadUpdate(ctx context.Context, conn Conn, data json.RawMessage) {
	var payload notepadPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.RoomID == "" {
		g.logger.Warn("bad notepad payload", zap.String("conn_id", conn.ID()), zap.Error(err))
		return
	}

	g.registry.Hydrate(ctx, payload.RoomID)

	g.dispatchMu.Lock()
	g.registry.SetNotepad(ctx, payload.RoomID, payload.Content)
	// The sender already holds this content locally; echoing it back would
	// clobber in-flight keystrokes.
	g.hub.broadcast(payload.RoomID, conn.ID(), EventNotepad, payload.Content)
	g.dispatchMu.Unlock()

	g.persist("notepad", payload.RoomID, func(ctx context.Context) error {
		return g.store.SaveNotepad(ctx, payload.RoomID, payload.Content)
	})
}

func (g *Gateway) handleChatMessage(ctx context.Context, conn Conn, data json.RawMessage) {
	var payload chatPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.RoomID == "" {
		g.logger.Warn("bad chat payload", zap.String("conn_id", conn.ID()), zap.Error(err))
		return
	}

	g.registry.Hydrate(ctx, payload.RoomID)
	message := rooms.ChatMessage{
		Sender: payload.From,
		Text:   payload.Message,
		Ts:     g.clock().UTC(),
	}

	g.dispatchMu.Lock()
	// Everyone gets the broadcast, sender included; the sender reconciles
	// against its optimistic local copy.
	g.hub.broadcast(payload.RoomID, "", EventChatMessage, message)
	g.dispatchMu.Unlock()

	g.persist("chat", payload.RoomID, func(ctx context.Context) error {
		return g.store.AppendMessage(ctx, payload.RoomID, message)
	})
}

func (g *Gateway) handleVoiceJoin(ctx context.Context, conn Conn, data json.RawMessage) {
	var payload joinPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.RoomID == "" {
		g.logger.Warn("bad voice join payload", zap.String("conn_id", conn.ID()), zap.Error(err))
		return
	}

	g.registry.Hydrate(ctx, payload.RoomID)

	g.dispatchMu.Lock()
	defer g.dispatchMu.Unlock()

	voice := g.registry.VoiceJoin(ctx, payload.RoomID, conn.ID(), payload.User)
	g.hub.broadcast(payload.RoomID, "", EventVoicePresence, voice)
}

func (g *Gateway) handleVoiceLeave(conn Conn, data json.RawMessage) {
	var payload roomPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.RoomID == "" {
		g.logger.Warn("bad voice leave payload", zap.String("conn_id", conn.ID()), zap.Error(err))
		return
	}

	g.dispatchMu.Lock()
	defer g.dispatchMu.Unlock()

	voice := g.registry.VoiceLeave(payload.RoomID, conn.ID())
	g.hub.broadcast(payload.RoomID, "", EventVoicePresence, voice)
}

// persist runs a store write in the background. The broadcast has already
// happened; a failed write is logged and lost, never surfaced to clients.
func (g *Gateway) persist(kind, roomID string, write func(context.Context) error) {
	go func() {
		if err := write(context.Background()); err != nil {
			g.logger.Warn("best-effort persistence failed",
				zap.String("kind", kind), zap.String("room_id", roomID), zap.Error(err))
		}
	}()
}
