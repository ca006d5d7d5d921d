package services

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"huddle/internal/core/domain"
	"huddle/internal/core/ports"
	"huddle/pkg/validation"

	"go.uber.org/zap"
)

// FanoutService persists chat messages and pushes them to every live member
// of the room. Insert and broadcast for one room are serialized, so members
// observe messages in store completion order. Different rooms proceed in
// parallel.
type FanoutService struct {
	store            ports.MessageStore
	rooms            *RoomRegistry
	conns            *ConnectionRegistry
	metrics          ports.MetricsRecorder
	logger           *zap.SugaredLogger
	maxContentLength int

	locksMu sync.Mutex
	locks   map[domain.RoomKey]*roomLock
}

// roomLock serializes insert and broadcast for one room. It lives in the
// lock table only while some send holds or waits on it.
type roomLock struct {
	mu   sync.Mutex
	refs int
}

func NewFanoutService(
	store ports.MessageStore,
	rooms *RoomRegistry,
	conns *ConnectionRegistry,
	metrics ports.MetricsRecorder,
	logger *zap.SugaredLogger,
	maxContentLength int,
) *FanoutService {
	return &FanoutService{
		store:            store,
		rooms:            rooms,
		conns:            conns,
		metrics:          metrics,
		logger:           logger,
		maxContentLength: maxContentLength,
		locks:            make(map[domain.RoomKey]*roomLock),
	}
}

// Send stores content in the room and broadcasts the stored message. A nil
// sender posts a system message. Delivery failures to individual members are
// dropped; the returned error only reflects validation and persistence.
func (s *FanoutService) Send(ctx context.Context, key domain.RoomKey, sender *domain.Identity, content string) (*domain.ChatMessage, error) {
	if !key.Valid() {
		s.metrics.MessageSent(key.Kind, "invalid")
		return nil, fmt.Errorf("%w: room %s", domain.ErrInvalidMessage, key)
	}
	content = strings.TrimSpace(content)
	if err := validation.ValidateMessageContent(content, s.maxContentLength); err != nil {
		s.metrics.MessageSent(key.Kind, "invalid")
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidMessage, err)
	}

	var senderID *domain.UserID
	var senderName string
	if sender != nil {
		id := sender.ID
		senderID = &id
		senderName = sender.Username
	}

	lock := s.acquire(key)
	defer s.release(key, lock)

	receipt, err := s.store.InsertMessage(ctx, key, senderID, senderName, content)
	if err != nil {
		s.metrics.MessageSent(key.Kind, "storage_error")
		s.logger.Errorw("failed to store message", "room", key.String(), "error", err)
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}

	msg := &domain.ChatMessage{
		ID:         receipt.ID,
		Room:       key,
		SenderID:   senderID,
		SenderName: senderName,
		Content:    content,
		CreatedAt:  receipt.CreatedAt,
	}

	delivered := s.broadcast(key, domain.Event{Type: msg.EventType(), Payload: msg})
	s.metrics.MessageSent(key.Kind, "ok")
	s.logger.Debugw("message broadcast", "room", key.String(), "message_id", msg.ID, "delivered", delivered)
	return msg, nil
}

func (s *FanoutService) broadcast(key domain.RoomKey, event domain.Event) int {
	delivered := 0
	for _, handle := range s.rooms.MembersOf(key) {
		if err := s.conns.Deliver(handle, event); err != nil {
			s.metrics.DeliveryDropped()
			s.logger.Debugw("delivery dropped", "room", key.String(), "conn_id", handle, "error", err)
			continue
		}
		delivered++
	}
	return delivered
}

func (s *FanoutService) acquire(key domain.RoomKey) *roomLock {
	s.locksMu.Lock()
	lock, ok := s.locks[key]
	if !ok {
		lock = &roomLock{}
		s.locks[key] = lock
	}
	lock.refs++
	s.locksMu.Unlock()

	lock.mu.Lock()
	return lock
}

func (s *FanoutService) release(key domain.RoomKey, lock *roomLock) {
	lock.mu.Unlock()

	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	lock.refs--
	if lock.refs == 0 {
		delete(s.locks, key)
	}
}
