package services

import (
	"sync"

	"huddle/internal/core/domain"
)

// PresenceTable maps a user to the handle of their current connection. A
// newer connection silently supersedes the older one; the older connection
// stays open but is no longer discoverable.
type PresenceTable struct {
	mu      sync.RWMutex
	entries map[domain.UserID]domain.ConnID
}

func NewPresenceTable() *PresenceTable {
	return &PresenceTable{
		entries: make(map[domain.UserID]domain.ConnID),
	}
}

func (p *PresenceTable) Register(identity domain.Identity, handle domain.ConnID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[identity.ID] = handle
}

func (p *PresenceTable) Lookup(userID domain.UserID) (domain.ConnID, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	handle, ok := p.entries[userID]
	return handle, ok
}

// Unregister removes the entry only while it still points at handle, so a
// late disconnect of a superseded connection cannot clobber the newer one.
func (p *PresenceTable) Unregister(identity domain.Identity, handle domain.ConnID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if current, ok := p.entries[identity.ID]; !ok || current != handle {
		return false
	}
	delete(p.entries, identity.ID)
	return true
}

// Query resolves many users at once; absent users map to nil.
func (p *PresenceTable) Query(ids []domain.UserID) map[domain.UserID]*domain.ConnID {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[domain.UserID]*domain.ConnID, len(ids))
	for _, id := range ids {
		if handle, ok := p.entries[id]; ok {
			h := handle
			out[id] = &h
		} else {
			out[id] = nil
		}
	}
	return out
}

func (p *PresenceTable) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}
