package gateway

import "sync"

// Conn is one live client channel. The websocket transport implements it;
// tests substitute an in-memory recorder. Send must never block: slow
// consumers are the transport's problem, not the broadcast path's.
type Conn interface {
	ID() string
	Send(event string, payload any)
}

// hub tracks which connections belong to which room broadcast group.
// Group mutations and the matching broadcast enqueues happen under one lock
// so every member of a room observes events in the same order.
type hub struct {
	mu    sync.Mutex
	rooms map[string]map[string]Conn
}

func newHub() *hub {
	return &hub{rooms: make(map[string]map[string]Conn)}
}

func (h *hub) join(roomID string, conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	group, ok := h.rooms[roomID]
	if !ok {
		group = make(map[string]Conn)
		h.rooms[roomID] = group
	}
	group[conn.ID()] = conn
}

func (h *hub) leave(roomID, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if group, ok := h.rooms[roomID]; ok {
		delete(group, connID)
		if len(group) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

// dropAll removes the connection from every group it belongs to.
func (h *hub) dropAll(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for roomID, group := range h.rooms {
		delete(group, connID)
		if len(group) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

// broadcast emits the event to every connection in the room. A non-empty
// excludeID skips that connection (sender exclusion).
func (h *hub) broadcast(roomID, excludeID, event string, payload any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for connID, conn := range h.rooms[roomID] {
		if connID == excludeID {
			continue
		}
		conn.Send(event, payload)
	}
}
