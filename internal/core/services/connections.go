package services

import (
	"sync"

	"huddle/internal/core/domain"
	"huddle/internal/core/ports"
)

// ConnectionRegistry indexes live connections by handle. Every push goes
// through Deliver so a handle that has gone away is a plain error, never a
// dangling reference.
type ConnectionRegistry struct {
	mu    sync.RWMutex
	conns map[domain.ConnID]ports.Connection
}

func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{
		conns: make(map[domain.ConnID]ports.Connection),
	}
}

func (r *ConnectionRegistry) Add(conn ports.Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[conn.ID()] = conn
}

// Remove reports whether the handle was still registered.
func (r *ConnectionRegistry) Remove(id domain.ConnID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[id]; !ok {
		return false
	}
	delete(r.conns, id)
	return true
}

func (r *ConnectionRegistry) Get(id domain.ConnID) (ports.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[id]
	return conn, ok
}

// Deliver queues v on the connection with the given handle.
func (r *ConnectionRegistry) Deliver(id domain.ConnID, v interface{}) error {
	conn, ok := r.Get(id)
	if !ok {
		return domain.ErrConnectionNotFound
	}
	return conn.Send(v)
}

func (r *ConnectionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// All returns a snapshot of every live connection.
func (r *ConnectionRegistry) All() []ports.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ports.Connection, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}
