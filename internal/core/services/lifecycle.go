package services

import (
	"net/http"

	"huddle/internal/core/domain"
	"huddle/internal/core/ports"

	"go.uber.org/zap"
)

// LifecycleManager moves a connection through connect, activate and close.
// A connection that fails authentication is never registered anywhere.
type LifecycleManager struct {
	resolver ports.IdentityResolver
	conns    *ConnectionRegistry
	presence *PresenceTable
	rooms    *RoomRegistry
	metrics  ports.MetricsRecorder
	logger   *zap.SugaredLogger
}

func NewLifecycleManager(
	resolver ports.IdentityResolver,
	conns *ConnectionRegistry,
	presence *PresenceTable,
	rooms *RoomRegistry,
	metrics ports.MetricsRecorder,
	logger *zap.SugaredLogger,
) *LifecycleManager {
	return &LifecycleManager{
		resolver: resolver,
		conns:    conns,
		presence: presence,
		rooms:    rooms,
		metrics:  metrics,
		logger:   logger,
	}
}

// Authenticate resolves the identity behind an upgrade request.
func (m *LifecycleManager) Authenticate(r *http.Request) (domain.Identity, error) {
	identity, err := m.resolver.Resolve(r)
	if err != nil || !identity.Valid() {
		m.metrics.ConnectionRejected()
		return domain.Identity{}, domain.ErrUnauthorized
	}
	return identity, nil
}

// Activate registers an authenticated connection and tells the client its
// own handle.
func (m *LifecycleManager) Activate(conn ports.Connection) {
	identity := conn.Identity()

	m.conns.Add(conn)
	m.presence.Register(identity, conn.ID())

	m.metrics.ConnectionOpened()
	m.metrics.PresenceSize(m.presence.Count())

	if err := conn.Send(domain.Event{
		Type:    domain.EventConnected,
		Payload: domain.ConnectedPayload{Handle: conn.ID(), Identity: identity},
	}); err != nil {
		m.logger.Warnw("failed to send connected event", "conn_id", conn.ID(), "error", err)
	}

	m.logger.Infow("connection active", "conn_id", conn.ID(), "user_id", identity.ID, "username", identity.Username)
}

// Close deregisters the connection everywhere. Calling it more than once is
// harmless.
func (m *LifecycleManager) Close(conn ports.Connection) {
	if !m.conns.Remove(conn.ID()) {
		return
	}

	identity := conn.Identity()
	superseded := !m.presence.Unregister(identity, conn.ID())
	left := m.rooms.LeaveAll(conn.ID())

	if err := conn.Close(); err != nil {
		m.logger.Debugw("close connection", "conn_id", conn.ID(), "error", err)
	}

	m.metrics.ConnectionClosed()
	m.metrics.PresenceSize(m.presence.Count())
	m.metrics.ActiveRooms(m.rooms.RoomCount())

	m.logger.Infow("connection closed",
		"conn_id", conn.ID(),
		"user_id", identity.ID,
		"rooms_left", len(left),
		"superseded", superseded,
	)
}

// CloseAll closes every live connection. Used on shutdown.
func (m *LifecycleManager) CloseAll() int {
	all := m.conns.All()
	for _, conn := range all {
		m.Close(conn)
	}
	return len(all)
}
