package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"huddle/internal/core/domain"
)

const (
	insertGroupMessage = `INSERT INTO group_messages (group_id, sender_id, sender_name, content)
VALUES ($1, $2, $3, $4) RETURNING id, created_at`

	insertDirectMessage = `INSERT INTO direct_messages (conversation_id, sender_id, sender_name, content)
VALUES ($1, $2, $3, $4) RETURNING id, created_at`

	countGroupMembers = `SELECT COUNT(*) FROM group_members WHERE group_id = $1`

	countFriendships = `SELECT COUNT(*) FROM friendships WHERE user_id = $1`
)

// PostgresMessageStore persists messages in per-kind tables. Ids come from
// BIGSERIAL and timestamps from the database clock.
type PostgresMessageStore struct {
	db *sql.DB
}

func NewPostgresMessageStore(db *sql.DB) *PostgresMessageStore {
	return &PostgresMessageStore{db: db}
}

func (s *PostgresMessageStore) InsertMessage(ctx context.Context, room domain.RoomKey, senderID *domain.UserID, senderName, content string) (domain.MessageReceipt, error) {
	var query string
	switch room.Kind {
	case domain.RoomKindGroup:
		query = insertGroupMessage
	case domain.RoomKindDirect:
		query = insertDirectMessage
	default:
		return domain.MessageReceipt{}, fmt.Errorf("%w: %s", domain.ErrInvalidRoom, room)
	}

	var sender sql.NullInt64
	if senderID != nil {
		sender = sql.NullInt64{Int64: int64(*senderID), Valid: true}
	}

	var receipt domain.MessageReceipt
	err := s.db.QueryRowContext(ctx, query, room.ID, sender, senderName, content).
		Scan(&receipt.ID, &receipt.CreatedAt)
	if err != nil {
		return domain.MessageReceipt{}, fmt.Errorf("failed to insert message: %w", err)
	}
	receipt.CreatedAt = receipt.CreatedAt.UTC()
	return receipt, nil
}

func (s *PostgresMessageStore) CountGroupMembers(ctx context.Context, groupID int64) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, countGroupMembers, groupID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count group members: %w", err)
	}
	return n, nil
}

func (s *PostgresMessageStore) CountFriendships(ctx context.Context, userID domain.UserID) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, countFriendships, int64(userID)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count friendships: %w", err)
	}
	return n, nil
}

func (s *PostgresMessageStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
