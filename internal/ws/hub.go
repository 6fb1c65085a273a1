package ws

import (
	"sync"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

// UnknownMember is the display name reported for a room member that never
// completed a named join.
const UnknownMember = "Unknown"

// conn is the write side of a live connection as the hub sees it. The
// concrete type is *clientConn; tests substitute an in-memory fake.
type conn interface {
	writeJSON(v any) error
	close() error
}

// entry is one registered connection and its per-connection attributes.
type entry struct {
	conn  conn
	name  string
	rooms members // names of the rooms this connection has joined
}

// Hub owns the connection registry and the room directory. A single lock
// guards both, so a connection's room set and each room's member set can
// never disagree between the two structures.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]*entry  // connection id ➜ registry entry
	rooms map[string]members // room name ➜ member connection ids
}

func NewHub() *Hub {
	return &Hub{
		conns: make(map[string]*entry),
		rooms: make(map[string]members),
	}
}

// Register adds a freshly accepted connection with no display name and no
// room memberships.
func (h *Hub) Register(id string, c conn) {
	h.mu.Lock()
	h.conns[id] = &entry{conn: c, rooms: members{}}
	total := len(h.conns)
	h.mu.Unlock()

	zap.L().Info("ws.connected", zap.String("conn_id", id), zap.Int("connections", total))
}

// SetDisplayName attaches or overwrites the connection's display name.
// Unknown ids are ignored.
func (h *Hub) SetDisplayName(id, name string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if e, ok := h.conns[id]; ok {
		e.name = name
	}
}

// Join adds the connection to the room, creating the room on first join.
// Rejoining is a no-op; joining with an unregistered id is a no-op.
func (h *Hub) Join(room, id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	e, ok := h.conns[id]
	if !ok {
		return
	}
	if e.rooms.has(room) {
		return
	}
	e.rooms.add(room)

	m, ok := h.rooms[room]
	if !ok {
		m = members{}
		h.rooms[room] = m
	}
	m.add(id)
}

// Leave removes the connection from the room. The room entry is dropped
// once its last member leaves, so an empty room and an absent room are the
// same thing. Unknown rooms and ids are ignored.
func (h *Hub) Leave(room, id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if e, ok := h.conns[id]; ok {
		e.rooms.remove(room)
	}
	if m, ok := h.rooms[room]; ok {
		m.remove(id)
		if len(m) == 0 {
			delete(h.rooms, room)
		}
	}
}

// Members returns the display names of the room's current members,
// UnknownMember for any member that never set one. An absent room yields an
// empty list.
func (h *Hub) Members(room string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return lo.Map(lo.Keys(h.rooms[room]), func(id string, _ int) string {
		if e, ok := h.conns[id]; ok && e.name != "" {
			return e.name
		}
		return UnknownMember
	})
}

// Unregister removes the connection from every room it joined, drops its
// registry entry and closes the transport. Safe to call for ids that were
// already removed (a disconnect racing a write-failure cleanup).
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	e, ok := h.conns[id]
	if !ok {
		h.mu.Unlock()
		return
	}
	for room := range e.rooms {
		if m, ok := h.rooms[room]; ok {
			m.remove(id)
			if len(m) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	delete(h.conns, id)
	total := len(h.conns)
	h.mu.Unlock()

	_ = e.conn.close()
	zap.L().Info("ws.disconnected", zap.String("conn_id", id), zap.Int("connections", total))
}

type broadcastTarget struct {
	id   string
	conn conn
}

// Broadcast writes v to every current member of room, skipping the
// connection named by exclude (empty string skips nobody). The member set
// is snapshotted under the read lock; the I/O happens outside it, and a
// connection whose write fails is unregistered.
func (h *Hub) Broadcast(room, exclude string, v any) {
	h.mu.RLock()
	targets := make([]broadcastTarget, 0, len(h.rooms[room]))
	for id := range h.rooms[room] {
		if id == exclude {
			continue
		}
		if e, ok := h.conns[id]; ok {
			targets = append(targets, broadcastTarget{id: id, conn: e.conn})
		}
	}
	h.mu.RUnlock()

	var failed []string
	for _, t := range targets {
		if err := t.conn.writeJSON(v); err != nil {
			failed = append(failed, t.id)
		}
	}
	for _, id := range failed {
		zap.L().Warn("ws.broadcast_write_failed", zap.String("conn_id", id), zap.String("room", room))
		h.Unregister(id)
	}
}

// SendTo writes v to a single connection. An unknown id is a silent no-op;
// a failed write unregisters the connection.
func (h *Hub) SendTo(id string, v any) {
	h.mu.RLock()
	e, ok := h.conns[id]
	h.mu.RUnlock()
	if !ok {
		return
	}

	if err := e.conn.writeJSON(v); err != nil {
		zap.L().Warn("ws.send_write_failed", zap.String("conn_id", id), zap.Error(err))
		h.Unregister(id)
	}
}
