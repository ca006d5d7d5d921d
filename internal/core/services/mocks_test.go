package services

import (
	"context"
	"net/http"
	"sync"
	"time"

	"huddle/internal/core/domain"

	"github.com/stretchr/testify/mock"
)

// MockMessageStore for tests
type MockMessageStore struct {
	mock.Mock
}

func (m *MockMessageStore) InsertMessage(ctx context.Context, room domain.RoomKey, senderID *domain.UserID, senderName, content string) (domain.MessageReceipt, error) {
	args := m.Called(ctx, room, senderID, senderName, content)
	return args.Get(0).(domain.MessageReceipt), args.Error(1)
}

func (m *MockMessageStore) CountGroupMembers(ctx context.Context, groupID int64) (int, error) {
	args := m.Called(ctx, groupID)
	return args.Int(0), args.Error(1)
}

func (m *MockMessageStore) CountFriendships(ctx context.Context, userID domain.UserID) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

func (m *MockMessageStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// fakeConn records every event pushed to it.
type fakeConn struct {
	id       domain.ConnID
	identity domain.Identity

	mu      sync.Mutex
	events  []domain.Event
	closed  bool
	sendErr error
}

func newFakeConn(userID domain.UserID, username string) *fakeConn {
	return &fakeConn{
		id:       domain.NewConnID(),
		identity: domain.Identity{ID: userID, Username: username},
	}
}

func (c *fakeConn) ID() domain.ConnID         { return c.id }
func (c *fakeConn) Identity() domain.Identity { return c.identity }

func (c *fakeConn) Send(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return domain.ErrConnectionClosed
	}
	if c.sendErr != nil {
		return c.sendErr
	}
	c.events = append(c.events, v.(domain.Event))
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) Events() []domain.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Event, len(c.events))
	copy(out, c.events)
	return out
}

func (c *fakeConn) EventsOfType(t string) []domain.Event {
	var out []domain.Event
	for _, e := range c.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type staticResolver struct {
	identity domain.Identity
	err      error
}

func (r staticResolver) Resolve(*http.Request) (domain.Identity, error) {
	return r.identity, r.err
}

func receipt(id int64) domain.MessageReceipt {
	return domain.MessageReceipt{ID: id, CreatedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}
