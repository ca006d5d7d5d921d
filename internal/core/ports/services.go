package ports

import (
	"time"

	"huddle/internal/core/domain"
)

// MetricsRecorder receives operational counters from the core and transport.
type MetricsRecorder interface {
	ConnectionOpened()
	ConnectionClosed()
	ConnectionRejected()
	PresenceSize(n int)
	ActiveRooms(n int)
	RoomJoin(kind domain.RoomKind, result string)
	MessageSent(kind domain.RoomKind, result string)
	DeliveryDropped()
	SignalRelayed(signal string, delivered bool)
	StoreOperation(op string, d time.Duration, err error)
	WebSocketMessage(msgType, code string, d time.Duration)
}
