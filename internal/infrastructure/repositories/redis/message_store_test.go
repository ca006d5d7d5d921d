package redis

import (
	"context"
	"testing"
	"time"

	"huddle/internal/core/domain"
	"huddle/internal/core/ports"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var _ ports.MessageStore = (*RedisMessageStore)(nil)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := NewRedisClient(context.Background(), mr.Addr(), "", 0, 4, zap.NewNop().Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { _ = CloseRedisClient(client) })
	return mr, client
}

func TestNewRedisClient_RunsMigrations(t *testing.T) {
	mr, client := newTestClient(t)

	version, err := getSchemaVersion(context.Background(), client)
	require.NoError(t, err)
	assert.Equal(t, currentSchemaVersion, version)

	seq, err := mr.Get(messageSeqKey)
	require.NoError(t, err)
	assert.Equal(t, "0", seq)

	// running again is a no-op
	require.NoError(t, Migrate(context.Background(), client, nil))
}

func TestNewRedisClient_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisClient(context.Background(), addr, "", 0, 2, nil)
	assert.Error(t, err)
}

func TestRedisMessageStore_InsertMessage(t *testing.T) {
	mr, client := newTestClient(t)
	fixed := time.Date(2024, 3, 4, 5, 6, 7, 0, time.UTC)
	mr.SetTime(fixed)
	store := NewRedisMessageStore(client)
	ctx := context.Background()

	sender := domain.UserID(8)
	room := domain.GroupRoom(101)

	r1, err := store.InsertMessage(ctx, room, &sender, "gina", "hello")
	require.NoError(t, err)
	r2, err := store.InsertMessage(ctx, room, nil, "", "system notice")
	require.NoError(t, err)

	assert.Equal(t, int64(1), r1.ID)
	assert.Equal(t, int64(2), r2.ID)
	assert.True(t, r1.CreatedAt.Equal(fixed), "got %v", r1.CreatedAt)

	assert.Equal(t, "hello", mr.HGet(messageKey(1), "content"))
	assert.Equal(t, "8", mr.HGet(messageKey(1), "sender_id"))
	assert.False(t, mr.Exists(messageKey(1)+":missing"))

	ids, err := mr.List(roomMessagesKey(room))
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, ids)
}

func TestRedisMessageStore_RoomsAreSeparate(t *testing.T) {
	mr, client := newTestClient(t)
	store := NewRedisMessageStore(client)
	ctx := context.Background()

	_, err := store.InsertMessage(ctx, domain.GroupRoom(1), nil, "", "g")
	require.NoError(t, err)
	_, err = store.InsertMessage(ctx, domain.DirectRoom(1), nil, "", "d")
	require.NoError(t, err)

	group, err := mr.List(roomMessagesKey(domain.GroupRoom(1)))
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, group)

	direct, err := mr.List(roomMessagesKey(domain.DirectRoom(1)))
	require.NoError(t, err)
	assert.Equal(t, []string{"2"}, direct)
	assert.Equal(t, "d", mr.HGet(messageKey(2), "content"))
}

func TestRedisMessageStore_Counts(t *testing.T) {
	_, client := newTestClient(t)
	store := NewRedisMessageStore(client)
	ctx := context.Background()

	require.NoError(t, store.AddGroupMember(ctx, 5, 1))
	require.NoError(t, store.AddGroupMember(ctx, 5, 2))
	require.NoError(t, store.AddGroupMember(ctx, 5, 2))
	require.NoError(t, store.AddFriendship(ctx, 1, 2))
	require.NoError(t, store.AddFriendship(ctx, 1, 3))

	n, err := store.CountGroupMembers(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = store.CountGroupMembers(ctx, 6)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = store.CountFriendships(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = store.CountFriendships(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRedisMessageStore_ServerFailure(t *testing.T) {
	mr, client := newTestClient(t)
	store := NewRedisMessageStore(client)
	ctx := context.Background()

	require.NoError(t, store.Ping(ctx))

	mr.SetError("READONLY You can't write against a read only replica")
	_, err := store.InsertMessage(ctx, domain.GroupRoom(1), nil, "", "x")
	assert.Error(t, err)
	_, err = store.CountGroupMembers(ctx, 1)
	assert.Error(t, err)
	assert.Error(t, store.Ping(ctx))
}
