package ws

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"
)

// Hub is the connection registry: session id -> set of open conns. Each
// session has its own lock so independent sessions never contend.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]*connSet
	log   zerolog.Logger
}

type connSet struct {
	mu    sync.Mutex
	conns map[*Conn]bool
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		rooms: make(map[string]*connSet),
		log:   logger,
	}
}

func (h *Hub) room(sessionID string, create bool) *connSet {
	h.mu.RLock()
	set := h.rooms[sessionID]
	h.mu.RUnlock()
	if set != nil || !create {
		return set
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if set = h.rooms[sessionID]; set == nil {
		set = &connSet{conns: make(map[*Conn]bool)}
		h.rooms[sessionID] = set
	}
	return set
}

// Register is idempotent: adding a conn that is already present is a no-op.
func (h *Hub) Register(sessionID string, conn *Conn) {
	set := h.room(sessionID, true)
	set.mu.Lock()
	set.conns[conn] = true
	total := len(set.conns)
	set.mu.Unlock()
	h.log.Debug().Str("session_id", sessionID).Str("conn_id", conn.ID).Int("conns", total).Msg("ws: conn registered")
}

func (h *Hub) Unregister(sessionID string, conn *Conn) {
	set := h.room(sessionID, false)
	if set == nil {
		return
	}
	set.mu.Lock()
	delete(set.conns, conn)
	empty := len(set.conns) == 0
	set.mu.Unlock()

	if empty {
		h.mu.Lock()
		// Re-check under the map lock; a concurrent Register may have won.
		set.mu.Lock()
		if len(set.conns) == 0 && h.rooms[sessionID] == set {
			delete(h.rooms, sessionID)
		}
		set.mu.Unlock()
		h.mu.Unlock()
	}
	h.log.Debug().Str("session_id", sessionID).Str("conn_id", conn.ID).Msg("ws: conn unregistered")
}

// Broadcast delivers to every registered conn for the session except
// exclude. Delivery is best-effort per conn: a dead or saturated conn is
// dropped and closed without affecting its siblings.
func (h *Hub) Broadcast(sessionID string, event Event, exclude *Conn) {
	set := h.room(sessionID, false)
	if set == nil {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		h.log.Error().Err(err).Str("type", event.Type).Msg("ws: marshal failed")
		return
	}

	set.mu.Lock()
	targets := make([]*Conn, 0, len(set.conns))
	for conn := range set.conns {
		if conn != exclude {
			targets = append(targets, conn)
		}
	}
	set.mu.Unlock()

	for _, conn := range targets {
		if !conn.enqueue(data) {
			h.log.Warn().Str("session_id", sessionID).Str("conn_id", conn.ID).Msg("ws: send queue full, dropping conn")
			h.Unregister(sessionID, conn)
			conn.Close()
		}
	}
}

// SendTo targets one conn; a failed send drops the conn like a broadcast
// failure would.
func (h *Hub) SendTo(sessionID string, conn *Conn, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.log.Error().Err(err).Str("type", event.Type).Msg("ws: marshal failed")
		return
	}
	if !conn.enqueue(data) {
		h.Unregister(sessionID, conn)
		conn.Close()
	}
}

// Count is the in-process registry size for diagnostics; the presence store
// is the authority for online counts.
func (h *Hub) Count(sessionID string) int {
	set := h.room(sessionID, false)
	if set == nil {
		return 0
	}
	set.mu.Lock()
	defer set.mu.Unlock()
	return len(set.conns)
}
