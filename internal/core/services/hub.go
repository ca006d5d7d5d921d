package services

import (
	"context"
	"errors"
	"fmt"

	"huddle/internal/core/domain"
	"huddle/internal/core/ports"

	"go.uber.org/zap"
)

type HubConfig struct {
	GroupCapacity    int
	MaxContentLength int
}

// Hub owns the live tables and the services that operate on them. One Hub
// is built per process and handed to every transport.
type Hub struct {
	Connections *ConnectionRegistry
	Presence    *PresenceTable
	Rooms       *RoomRegistry
	Fanout      *FanoutService
	Relay       *SignalingRelay
	Lifecycle   *LifecycleManager

	store   ports.MessageStore
	metrics ports.MetricsRecorder
}

func NewHub(
	cfg HubConfig,
	store ports.MessageStore,
	resolver ports.IdentityResolver,
	metrics ports.MetricsRecorder,
	logger *zap.SugaredLogger,
) *Hub {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	conns := NewConnectionRegistry()
	presence := NewPresenceTable()
	rooms := NewRoomRegistry(store, cfg.GroupCapacity)

	return &Hub{
		Connections: conns,
		Presence:    presence,
		Rooms:       rooms,
		Fanout:      NewFanoutService(store, rooms, conns, metrics, logger.Named("fanout"), cfg.MaxContentLength),
		Relay:       NewSignalingRelay(presence, conns, metrics, logger.Named("relay")),
		Lifecycle:   NewLifecycleManager(resolver, conns, presence, rooms, metrics, logger.Named("lifecycle")),
		store:       store,
		metrics:     metrics,
	}
}

// JoinRoom adds a live connection to a room and records the outcome. A handle
// that is not registered, or is deregistered while the join runs, never stays
// in the room: Close removes the handle from the index before it calls
// LeaveAll, so either that LeaveAll or the check below removes it.
func (h *Hub) JoinRoom(ctx context.Context, key domain.RoomKey, handle domain.ConnID) error {
	err := h.Rooms.Join(ctx, key, handle)
	if err == nil {
		if _, live := h.Connections.Get(handle); !live {
			h.Rooms.Leave(key, handle)
			err = domain.ErrConnectionNotFound
		}
	}
	h.metrics.RoomJoin(key.Kind, joinResult(err))
	if err == nil {
		h.metrics.ActiveRooms(h.Rooms.RoomCount())
	}
	return err
}

func (h *Hub) LeaveRoom(key domain.RoomKey, handle domain.ConnID) {
	h.Rooms.Leave(key, handle)
	h.metrics.ActiveRooms(h.Rooms.RoomCount())
}

func (h *Hub) QueryPresence(ids []domain.UserID) map[domain.UserID]*domain.ConnID {
	return h.Presence.Query(ids)
}

// Summary describes a user's own presence, the rooms their current
// connection has joined and their persisted friend count.
func (h *Hub) Summary(ctx context.Context, identity domain.Identity) (*domain.UserSummary, error) {
	friends, err := h.store.CountFriendships(ctx, identity.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: count friendships: %v", domain.ErrStorage, err)
	}
	summary := &domain.UserSummary{Identity: identity, Rooms: []domain.RoomKey{}, FriendCount: friends}
	if handle, ok := h.Presence.Lookup(identity.ID); ok {
		summary.Online = true
		summary.Handle = &handle
		summary.Rooms = h.Rooms.RoomsOf(handle)
	}
	return summary, nil
}

// Ready reports whether the store answers.
func (h *Hub) Ready(ctx context.Context) error {
	return h.store.Ping(ctx)
}

func joinResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrRoomFull):
		return "room_full"
	case errors.Is(err, domain.ErrInvalidRoom):
		return "invalid"
	case errors.Is(err, domain.ErrConnectionNotFound):
		return "closed"
	default:
		return "storage_error"
	}
}
