// Package relay implements the room-scoped realtime event relay: connection
// registry, presence tracking, room fan-out, and the per-event handlers that
// tie them together over a websocket transport.
package relay

import (
	"encoding/json"
	"sync"
)

// Conn is the capability the relay needs from a transport connection.
// Registry stores handles behind this interface so tests and alternative
// transports can plug in without touching the engine.
type Conn interface {
	ID() string
	Send(event string, data json.RawMessage) error
}

type connState struct {
	conn     Conn
	identity *Identity
	rooms    map[string]struct{}
}

// Registry tracks every live connection, the identity it claimed on join,
// and the set of rooms it has joined. A room has no stored entity of its
// own; it exists as the set of connections whose room set contains it.
type Registry struct {
	mu      sync.RWMutex
	conns   map[string]*connState          // connID -> state
	members map[string]map[string]struct{} // roomID -> connID set
}

func NewRegistry() *Registry {
	return &Registry{
		conns:   make(map[string]*connState),
		members: make(map[string]map[string]struct{}),
	}
}

// Register creates empty state for a new connection.
func (r *Registry) Register(conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.conns[conn.ID()] = &connState{
		conn:  conn,
		rooms: make(map[string]struct{}),
	}
}

// JoinRoom attaches room membership and re-sets the identity on the
// connection. Joining the same room twice is a no-op for membership.
// Returns false if the connection is not registered.
func (r *Registry) JoinRoom(connID, roomID string, identity Identity) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.conns[connID]
	if !ok {
		return false
	}

	state.identity = &identity
	state.rooms[roomID] = struct{}{}

	if _, ok := r.members[roomID]; !ok {
		r.members[roomID] = make(map[string]struct{})
	}
	r.members[roomID][connID] = struct{}{}
	return true
}

// Identity returns the identity stored on the connection, or false if the
// connection has not joined yet.
func (r *Registry) Identity(connID string) (Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state, ok := r.conns[connID]
	if !ok || state.identity == nil {
		return Identity{}, false
	}
	return *state.identity, true
}

// Members returns a snapshot of the connections currently joined to roomID.
func (r *Registry) Members(roomID string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids, ok := r.members[roomID]
	if !ok {
		return nil
	}
	conns := make([]Conn, 0, len(ids))
	for id := range ids {
		if state, exists := r.conns[id]; exists {
			conns = append(conns, state.conn)
		}
	}
	return conns
}

// All returns a snapshot of every registered connection.
func (r *Registry) All() []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]Conn, 0, len(r.conns))
	for _, state := range r.conns {
		conns = append(conns, state.conn)
	}
	return conns
}

// Count returns the number of registered connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Unregister removes all state for the connection and returns the last known
// identity so the caller can run presence cleanup after the connection is
// gone. Empty room sets are dropped to avoid leaking room keys over time.
func (r *Registry) Unregister(connID string) (Identity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.conns[connID]
	if !ok {
		return Identity{}, false
	}
	delete(r.conns, connID)

	for roomID := range state.rooms {
		if ids, exists := r.members[roomID]; exists {
			delete(ids, connID)
			if len(ids) == 0 {
				delete(r.members, roomID)
			}
		}
	}

	if state.identity == nil {
		return Identity{}, false
	}
	return *state.identity, true
}
