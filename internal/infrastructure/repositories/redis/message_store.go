package redis

import (
	"context"
	"fmt"

	"huddle/internal/core/domain"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix     = "huddle:"
	messageSeqKey = keyPrefix + "message:seq"
)

func messageKey(id int64) string {
	return fmt.Sprintf("%smessage:%d", keyPrefix, id)
}

func roomMessagesKey(room domain.RoomKey) string {
	return fmt.Sprintf("%sroom:%s:%d:messages", keyPrefix, room.Kind, room.ID)
}

func groupMembersKey(groupID int64) string {
	return fmt.Sprintf("%sgroup:%d:members", keyPrefix, groupID)
}

func friendsKey(userID domain.UserID) string {
	return fmt.Sprintf("%suser:%d:friends", keyPrefix, userID)
}

// RedisMessageStore keeps each message in a hash and appends its id to the
// room's history list. Ids come from a single INCR sequence and timestamps
// from the server clock.
type RedisMessageStore struct {
	client *redis.Client
}

func NewRedisMessageStore(client *redis.Client) *RedisMessageStore {
	return &RedisMessageStore{client: client}
}

func (r *RedisMessageStore) InsertMessage(ctx context.Context, room domain.RoomKey, senderID *domain.UserID, senderName, content string) (domain.MessageReceipt, error) {
	id, err := r.client.Incr(ctx, messageSeqKey).Result()
	if err != nil {
		return domain.MessageReceipt{}, fmt.Errorf("failed to allocate message id: %w", err)
	}

	now, err := r.client.Time(ctx).Result()
	if err != nil {
		return domain.MessageReceipt{}, fmt.Errorf("failed to read server time: %w", err)
	}
	createdAt := now.UTC()

	fields := map[string]interface{}{
		"id":          id,
		"room_kind":   string(room.Kind),
		"room_id":     room.ID,
		"sender_name": senderName,
		"content":     content,
		"created_at":  createdAt.UnixNano(),
	}
	if senderID != nil {
		fields["sender_id"] = int64(*senderID)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, messageKey(id), fields)
		pipe.RPush(ctx, roomMessagesKey(room), id)
		return nil
	})
	if err != nil {
		return domain.MessageReceipt{}, fmt.Errorf("failed to store message: %w", err)
	}

	return domain.MessageReceipt{ID: id, CreatedAt: createdAt}, nil
}

func (r *RedisMessageStore) CountGroupMembers(ctx context.Context, groupID int64) (int, error) {
	n, err := r.client.SCard(ctx, groupMembersKey(groupID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count group members: %w", err)
	}
	return int(n), nil
}

func (r *RedisMessageStore) CountFriendships(ctx context.Context, userID domain.UserID) (int, error) {
	n, err := r.client.SCard(ctx, friendsKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count friendships: %w", err)
	}
	return int(n), nil
}

func (r *RedisMessageStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// AddGroupMember records a persisted group membership.
func (r *RedisMessageStore) AddGroupMember(ctx context.Context, groupID int64, userID domain.UserID) error {
	return r.client.SAdd(ctx, groupMembersKey(groupID), int64(userID)).Err()
}

// AddFriendship records a mutual friendship.
func (r *RedisMessageStore) AddFriendship(ctx context.Context, a, b domain.UserID) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, friendsKey(a), int64(b))
		pipe.SAdd(ctx, friendsKey(b), int64(a))
		return nil
	})
	return err
}
