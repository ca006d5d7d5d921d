package ports

import (
	"context"

	"huddle/internal/core/domain"
)

// MembershipCounter reports persisted group membership.
type MembershipCounter interface {
	CountGroupMembers(ctx context.Context, groupID int64) (int, error)
}

// MessageStore is the persistence collaborator of the core. Every method may
// fail; the core never retries an insert.
type MessageStore interface {
	MembershipCounter
	InsertMessage(ctx context.Context, room domain.RoomKey, senderID *domain.UserID, senderName, content string) (domain.MessageReceipt, error)
	CountFriendships(ctx context.Context, userID domain.UserID) (int, error)
	Ping(ctx context.Context) error
}
