// Package realtime fans conversation events out to live connections and
// relays call signaling between participants.
package realtime

import (
	"errors"
	"sync"

	"chatcore/internal/domain"
	"chatcore/internal/observability/metrics"

	"github.com/google/uuid"
)

var ErrHubClosed = errors.New("realtime: hub closed")

// Event is one frame pushed to a connection.
type Event struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId,omitempty"`
	Data      any    `json:"data,omitempty"`
}

// Conn is a live client connection.
type Conn interface {
	ID() string
	UserID() domain.UserID
	// Send queues ev without blocking and reports whether it was accepted.
	Send(ev Event) bool
	Close() error
}

// Hub tracks which connections are subscribed to which conversation rooms.
// It is owned by the process that creates it and must be closed on shutdown.
type Hub struct {
	mu     sync.RWMutex
	closed bool
	conns  map[string]Conn
	rooms  map[domain.ConversationID]map[string]Conn
	joined map[string]map[domain.ConversationID]struct{}
	users  map[domain.UserID]map[string]Conn
}

func NewHub() *Hub {
	return &Hub{
		conns:  make(map[string]Conn),
		rooms:  make(map[domain.ConversationID]map[string]Conn),
		joined: make(map[string]map[domain.ConversationID]struct{}),
		users:  make(map[domain.UserID]map[string]Conn),
	}
}

func (h *Hub) Register(c Conn) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHubClosed
	}
	if _, ok := h.conns[c.ID()]; ok {
		return nil
	}
	h.conns[c.ID()] = c
	h.joined[c.ID()] = make(map[domain.ConversationID]struct{})
	set := h.users[c.UserID()]
	if set == nil {
		set = make(map[string]Conn)
		h.users[c.UserID()] = set
	}
	set[c.ID()] = c
	metrics.RealtimeConnections.Inc()
	return nil
}

// Unregister removes c from every room. Other connections of the same user
// are untouched.
func (h *Hub) Unregister(c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c.ID())
}

func (h *Hub) removeLocked(connID string) {
	c, ok := h.conns[connID]
	if !ok {
		return
	}
	for room := range h.joined[connID] {
		members := h.rooms[room]
		delete(members, connID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(h.joined, connID)
	delete(h.conns, connID)
	if set := h.users[c.UserID()]; set != nil {
		delete(set, connID)
		if len(set) == 0 {
			delete(h.users, c.UserID())
		}
	}
	metrics.RealtimeConnections.Dec()
}

// Join subscribes a registered connection to room. It reports false when the
// connection is not registered.
func (h *Hub) Join(c Conn, room domain.ConversationID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.joinLocked(c.ID(), room)
}

func (h *Hub) joinLocked(connID string, room domain.ConversationID) bool {
	c, ok := h.conns[connID]
	if !ok {
		return false
	}
	members := h.rooms[room]
	if members == nil {
		members = make(map[string]Conn)
		h.rooms[room] = members
	}
	members[connID] = c
	h.joined[connID][room] = struct{}{}
	return true
}

// JoinUser subscribes every live connection of userID to room and returns how
// many connections were subscribed.
func (h *Hub) JoinUser(userID domain.UserID, room domain.ConversationID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for connID := range h.users[userID] {
		if h.joinLocked(connID, room) {
			n++
		}
	}
	return n
}

func (h *Hub) Leave(c Conn, room domain.ConversationID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members := h.rooms[room]; members != nil {
		delete(members, c.ID())
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	if rooms := h.joined[c.ID()]; rooms != nil {
		delete(rooms, room)
	}
}

// InRoom reports whether connID is subscribed to room.
func (h *Hub) InRoom(connID string, room domain.ConversationID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[room][connID]
	return ok
}

// Broadcast delivers ev to every connection in room and returns the number
// of connections that accepted it.
func (h *Hub) Broadcast(room domain.ConversationID, ev Event) int {
	return deliver(h.snapshot(h.rooms, room, nil), ev)
}

// BroadcastExceptUser delivers ev to room, skipping every connection of userID.
func (h *Hub) BroadcastExceptUser(room domain.ConversationID, userID domain.UserID, ev Event) int {
	return deliver(h.snapshot(h.rooms, room, &userID), ev)
}

// SendToUser delivers ev to every live connection of userID.
func (h *Hub) SendToUser(userID domain.UserID, ev Event) int {
	return deliver(h.snapshot(h.users, userID, nil), ev)
}

func (h *Hub) snapshot(index map[uuid.UUID]map[string]Conn, key uuid.UUID, skip *domain.UserID) []Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	members := index[key]
	out := make([]Conn, 0, len(members))
	for _, c := range members {
		if skip != nil && c.UserID() == *skip {
			continue
		}
		out = append(out, c)
	}
	return out
}

func deliver(targets []Conn, ev Event) int {
	n := 0
	for _, c := range targets {
		if c.Send(ev) {
			n++
			metrics.RealtimeEventsTotal.WithLabelValues(ev.Type).Inc()
			continue
		}
		metrics.RealtimeDroppedTotal.WithLabelValues(ev.Type).Inc()
	}
	return n
}

// Close closes every registered connection and rejects new registrations.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	conns := make([]Conn, 0, len(h.conns))
	for id, c := range h.conns {
		conns = append(conns, c)
		h.removeLocked(id)
	}
	h.mu.Unlock()
	for _, c := range conns {
		_ = c.Close()
	}
}
