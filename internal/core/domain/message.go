package domain

import "time"

type ChatMessage struct {
	ID         int64     `json:"id"`
	Room       RoomKey   `json:"room"`
	SenderID   *UserID   `json:"sender_id"` // nil for system messages
	SenderName string    `json:"sender_name,omitempty"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
}

// MessageReceipt is what the store hands back after an insert.
type MessageReceipt struct {
	ID        int64
	CreatedAt time.Time
}

// EventType is the push event name used when broadcasting the message.
func (m *ChatMessage) EventType() string {
	if m.Room.Kind == RoomKindDirect {
		return EventDirectMessage
	}
	return EventGroupMessage
}
