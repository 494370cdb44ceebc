package websocket

import (
	"sort"
	"sync"

	"retroboard/pkg/interfaces"
)

// Registry tracks open connections and the room each joined connection is in
// A room is keyed by session id. A connection is in at most one room.
type Registry struct {
	mu          sync.RWMutex
	connections map[string]interfaces.Connection            // connID -> Connection
	rooms       map[string]map[string]interfaces.Connection // sessionID -> connID -> Connection
	memberOf    map[string]string                           // connID -> sessionID
}

// NewRegistry creates a new connection registry
func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[string]interfaces.Connection),
		rooms:       make(map[string]map[string]interfaces.Connection),
		memberOf:    make(map[string]string),
	}
}

// Register adds an open connection that has not joined a room yet
func (r *Registry) Register(conn interfaces.Connection) error {
	if conn == nil {
		return ErrNilConnection
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.connections[conn.GetID()] = conn
	return nil
}

// Unregister removes conn and takes it out of its room. Idempotent.
func (r *Registry) Unregister(conn interfaces.Connection) {
	if conn == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id := conn.GetID()
	// Only the instance that was registered under this id may remove it
	if registered, ok := r.connections[id]; ok && registered == conn {
		delete(r.connections, id)
	}
	r.leaveLocked(id)
}

// JoinRoom moves conn into the room of its bound session, leaving any
// previous room first.
func (r *Registry) JoinRoom(conn interfaces.Connection) error {
	if conn == nil {
		return ErrNilConnection
	}
	if !conn.IsJoined() {
		return ErrConnectionNotJoined
	}
	room := conn.GetSessionID()
	if room == "" {
		return ErrEmptyRoom
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id := conn.GetID()
	if current, ok := r.memberOf[id]; ok && current == room {
		r.rooms[room][id] = conn
		return nil
	}
	r.leaveLocked(id)

	if r.rooms[room] == nil {
		r.rooms[room] = make(map[string]interfaces.Connection)
	}
	r.rooms[room][id] = conn
	r.memberOf[id] = room
	r.connections[id] = conn
	return nil
}

// LeaveRoom takes conn out of its room and returns the room it left
func (r *Registry) LeaveRoom(conn interfaces.Connection) (string, bool) {
	if conn == nil {
		return "", false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return r.leaveLocked(conn.GetID())
}

func (r *Registry) leaveLocked(id string) (string, bool) {
	room, ok := r.memberOf[id]
	if !ok {
		return "", false
	}
	delete(r.memberOf, id)
	if members, exists := r.rooms[room]; exists {
		delete(members, id)
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}
	return room, true
}

// RoomOf returns the room conn is currently in
func (r *Registry) RoomOf(conn interfaces.Connection) (string, bool) {
	if conn == nil {
		return "", false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.memberOf[conn.GetID()]
	return room, ok
}

// GetConnection returns the open connection with the given id
func (r *Registry) GetConnection(id string) (interfaces.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, exists := r.connections[id]
	return conn, exists
}

// RoomConnections returns every connection in a room, ordered by id so
// broadcasts walk the room deterministically.
func (r *Registry) RoomConnections(room string) []interfaces.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.rooms[room]
	connections := make([]interfaces.Connection, 0, len(members))
	for _, conn := range members {
		connections = append(connections, conn)
	}
	sort.Slice(connections, func(i, j int) bool {
		return connections[i].GetID() < connections[j].GetID()
	})
	return connections
}

// GetStats returns registry statistics for monitoring and debugging
func (r *Registry) GetStats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return map[string]int{
		"total_connections":  len(r.connections),
		"joined_connections": len(r.memberOf),
		"active_rooms":       len(r.rooms),
	}
}
