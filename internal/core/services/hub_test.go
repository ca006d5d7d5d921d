package services

import (
	"context"
	"errors"
	"testing"

	"huddle/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestHub_JoinLeaveRoom(t *testing.T) {
	hub, _ := newTestHub(t, staticResolver{})
	c := newFakeConn(1, "a")
	hub.Lifecycle.Activate(c)

	room := domain.GroupRoom(3)
	require.NoError(t, hub.JoinRoom(context.Background(), room, c.ID()))
	assert.Equal(t, 1, hub.Rooms.RoomCount())

	hub.LeaveRoom(room, c.ID())
	assert.Equal(t, 0, hub.Rooms.RoomCount())

	// leave then rejoin restores membership
	require.NoError(t, hub.JoinRoom(context.Background(), room, c.ID()))
	assert.Equal(t, []domain.ConnID{c.ID()}, hub.Rooms.MembersOf(room))
}

func TestHub_JoinRoomRejectsClosedConnection(t *testing.T) {
	hub, _ := newTestHub(t, staticResolver{})
	c := newFakeConn(1, "a")
	hub.Lifecycle.Activate(c)
	room := domain.GroupRoom(3)

	hub.Lifecycle.CloseAll()

	err := hub.JoinRoom(context.Background(), room, c.ID())
	assert.ErrorIs(t, err, domain.ErrConnectionNotFound)
	assert.False(t, hub.Rooms.Exists(room))
	assert.Empty(t, hub.Rooms.RoomsOf(c.ID()))

	err = hub.JoinRoom(context.Background(), domain.DirectRoom(9), "never-registered")
	assert.ErrorIs(t, err, domain.ErrConnectionNotFound)
	assert.Equal(t, 0, hub.Rooms.RoomCount())
}

func TestHub_Summary(t *testing.T) {
	hub, store := newTestHub(t, staticResolver{})
	c := newFakeConn(4, "dora")
	hub.Lifecycle.Activate(c)
	store.On("CountFriendships", mock.Anything, domain.UserID(4)).Return(2, nil)

	summary, err := hub.Summary(context.Background(), c.Identity())
	require.NoError(t, err)
	assert.True(t, summary.Online)
	require.NotNil(t, summary.Handle)
	assert.Equal(t, c.ID(), *summary.Handle)
	assert.Equal(t, 2, summary.FriendCount)
}

func TestHub_SummaryStoreError(t *testing.T) {
	hub, store := newTestHub(t, staticResolver{})
	store.On("CountFriendships", mock.Anything, domain.UserID(4)).Return(0, errors.New("boom"))

	_, err := hub.Summary(context.Background(), domain.Identity{ID: 4})
	assert.ErrorIs(t, err, domain.ErrStorage)
}

func TestHub_Ready(t *testing.T) {
	hub, store := newTestHub(t, staticResolver{})
	store.On("Ping", mock.Anything).Return(nil).Once()
	store.On("Ping", mock.Anything).Return(errors.New("down")).Once()

	assert.NoError(t, hub.Ready(context.Background()))
	assert.Error(t, hub.Ready(context.Background()))
}

func TestJoinResult(t *testing.T) {
	assert.Equal(t, "ok", joinResult(nil))
	assert.Equal(t, "room_full", joinResult(domain.ErrRoomFull))
	assert.Equal(t, "invalid", joinResult(domain.ErrInvalidRoom))
	assert.Equal(t, "closed", joinResult(domain.ErrConnectionNotFound))
	assert.Equal(t, "storage_error", joinResult(domain.ErrStorage))
}
