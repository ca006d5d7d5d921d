package memory

import (
	"context"
	"sync"
	"time"

	"huddle/internal/core/domain"
)

// MemoryMessageStore keeps messages and memberships in process memory. It
// serves development and tests; nothing survives a restart.
type MemoryMessageStore struct {
	mu           sync.RWMutex
	nextID       int64
	messages     map[domain.RoomKey][]domain.ChatMessage
	groupMembers map[int64]map[domain.UserID]struct{}
	friendships  map[domain.UserID]map[domain.UserID]struct{}
	now          func() time.Time
}

func NewMemoryMessageStore() *MemoryMessageStore {
	return &MemoryMessageStore{
		messages:     make(map[domain.RoomKey][]domain.ChatMessage),
		groupMembers: make(map[int64]map[domain.UserID]struct{}),
		friendships:  make(map[domain.UserID]map[domain.UserID]struct{}),
		now:          time.Now,
	}
}

func (s *MemoryMessageStore) InsertMessage(ctx context.Context, room domain.RoomKey, senderID *domain.UserID, senderName, content string) (domain.MessageReceipt, error) {
	if err := ctx.Err(); err != nil {
		return domain.MessageReceipt{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	msg := domain.ChatMessage{
		ID:         s.nextID,
		Room:       room,
		SenderName: senderName,
		Content:    content,
		CreatedAt:  s.now().UTC(),
	}
	if senderID != nil {
		id := *senderID
		msg.SenderID = &id
	}
	s.messages[room] = append(s.messages[room], msg)

	return domain.MessageReceipt{ID: msg.ID, CreatedAt: msg.CreatedAt}, nil
}

func (s *MemoryMessageStore) CountGroupMembers(ctx context.Context, groupID int64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.groupMembers[groupID]), nil
}

func (s *MemoryMessageStore) CountFriendships(ctx context.Context, userID domain.UserID) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.friendships[userID]), nil
}

func (s *MemoryMessageStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// AddGroupMember records a persisted group membership.
func (s *MemoryMessageStore) AddGroupMember(groupID int64, userID domain.UserID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	members := s.groupMembers[groupID]
	if members == nil {
		members = make(map[domain.UserID]struct{})
		s.groupMembers[groupID] = members
	}
	members[userID] = struct{}{}
}

// AddFriendship records a mutual friendship.
func (s *MemoryMessageStore) AddFriendship(a, b domain.UserID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, pair := range [][2]domain.UserID{{a, b}, {b, a}} {
		friends := s.friendships[pair[0]]
		if friends == nil {
			friends = make(map[domain.UserID]struct{})
			s.friendships[pair[0]] = friends
		}
		friends[pair[1]] = struct{}{}
	}
}

// Messages returns the stored history of a room, oldest first.
func (s *MemoryMessageStore) Messages(room domain.RoomKey) []domain.ChatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ChatMessage, len(s.messages[room]))
	copy(out, s.messages[room])
	return out
}
