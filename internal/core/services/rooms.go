package services

import (
	"context"
	"fmt"
	"sync"

	"huddle/internal/core/domain"
	"huddle/internal/core/ports"
)

// RoomRegistry tracks which live connections have joined which rooms.
//
// Group rooms are bounded twice: by the persisted membership count read from
// the store, and by the number of live connections. The persisted count is a
// snapshot taken before the registry lock; the live count is checked and the
// handle inserted atomically under it.
type RoomRegistry struct {
	counter  ports.MembershipCounter
	capacity int

	mu     sync.RWMutex
	rooms  map[domain.RoomKey]map[domain.ConnID]struct{}
	byConn map[domain.ConnID]map[domain.RoomKey]struct{}
}

func NewRoomRegistry(counter ports.MembershipCounter, capacity int) *RoomRegistry {
	if capacity <= 0 {
		capacity = domain.DefaultGroupCapacity
	}
	return &RoomRegistry{
		counter:  counter,
		capacity: capacity,
		rooms:    make(map[domain.RoomKey]map[domain.ConnID]struct{}),
		byConn:   make(map[domain.ConnID]map[domain.RoomKey]struct{}),
	}
}

func (r *RoomRegistry) Join(ctx context.Context, key domain.RoomKey, handle domain.ConnID) error {
	if !key.Valid() {
		return domain.ErrInvalidRoom
	}

	bounded := key.Kind == domain.RoomKindGroup
	if bounded {
		persisted, err := r.counter.CountGroupMembers(ctx, key.ID)
		if err != nil {
			return fmt.Errorf("%w: count members of %s: %v", domain.ErrStorage, key, err)
		}
		if persisted >= r.capacity {
			return domain.ErrRoomFull
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	members := r.rooms[key]
	if _, ok := members[handle]; ok {
		return nil
	}
	if bounded && len(members) >= r.capacity {
		return domain.ErrRoomFull
	}

	if members == nil {
		members = make(map[domain.ConnID]struct{})
		r.rooms[key] = members
	}
	members[handle] = struct{}{}

	joined := r.byConn[handle]
	if joined == nil {
		joined = make(map[domain.RoomKey]struct{})
		r.byConn[handle] = joined
	}
	joined[key] = struct{}{}
	return nil
}

// Leave is idempotent. A room whose last member leaves is removed.
func (r *RoomRegistry) Leave(key domain.RoomKey, handle domain.ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(key, handle)
}

// LeaveAll removes handle from every room and returns the rooms it left.
func (r *RoomRegistry) LeaveAll(handle domain.ConnID) []domain.RoomKey {
	r.mu.Lock()
	defer r.mu.Unlock()

	joined := r.byConn[handle]
	left := make([]domain.RoomKey, 0, len(joined))
	for key := range joined {
		left = append(left, key)
	}
	for _, key := range left {
		r.removeLocked(key, handle)
	}
	return left
}

func (r *RoomRegistry) removeLocked(key domain.RoomKey, handle domain.ConnID) {
	if members, ok := r.rooms[key]; ok {
		delete(members, handle)
		if len(members) == 0 {
			delete(r.rooms, key)
		}
	}
	if joined, ok := r.byConn[handle]; ok {
		delete(joined, key)
		if len(joined) == 0 {
			delete(r.byConn, handle)
		}
	}
}

// MembersOf returns a snapshot of the handles currently in the room.
func (r *RoomRegistry) MembersOf(key domain.RoomKey) []domain.ConnID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := r.rooms[key]
	out := make([]domain.ConnID, 0, len(members))
	for h := range members {
		out = append(out, h)
	}
	return out
}

func (r *RoomRegistry) MemberCount(key domain.RoomKey) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[key])
}

// Exists reports whether the room has an entry. Empty rooms never do.
func (r *RoomRegistry) Exists(key domain.RoomKey) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[key]
	return ok
}

func (r *RoomRegistry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// RoomsOf lists the rooms a handle has joined.
func (r *RoomRegistry) RoomsOf(handle domain.ConnID) []domain.RoomKey {
	r.mu.RLock()
	defer r.mu.RUnlock()
	joined := r.byConn[handle]
	out := make([]domain.RoomKey, 0, len(joined))
	for key := range joined {
		out = append(out, key)
	}
	return out
}
