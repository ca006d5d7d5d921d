package services

import (
	"time"

	"huddle/internal/core/domain"
)

// NopMetrics discards everything. Used when monitoring is disabled and in
// tests.
type NopMetrics struct{}

func (NopMetrics) ConnectionOpened()                              {}
func (NopMetrics) ConnectionClosed()                              {}
func (NopMetrics) ConnectionRejected()                            {}
func (NopMetrics) PresenceSize(int)                               {}
func (NopMetrics) ActiveRooms(int)                                {}
func (NopMetrics) RoomJoin(domain.RoomKind, string)               {}
func (NopMetrics) MessageSent(domain.RoomKind, string)            {}
func (NopMetrics) DeliveryDropped()                               {}
func (NopMetrics) SignalRelayed(string, bool)                     {}
func (NopMetrics) StoreOperation(string, time.Duration, error)    {}
func (NopMetrics) WebSocketMessage(string, string, time.Duration) {}
