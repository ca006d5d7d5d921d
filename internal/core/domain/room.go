package domain

import (
	"fmt"
	"strconv"
	"strings"
)

type RoomKind string

const (
	RoomKindGroup  RoomKind = "group"
	RoomKindDirect RoomKind = "direct"
)

// DefaultGroupCapacity bounds both persisted membership and live
// connections of a group room.
const DefaultGroupCapacity = 10

type RoomKey struct {
	Kind RoomKind `json:"kind"`
	ID   int64    `json:"id"`
}

func GroupRoom(id int64) RoomKey {
	return RoomKey{Kind: RoomKindGroup, ID: id}
}

func DirectRoom(id int64) RoomKey {
	return RoomKey{Kind: RoomKindDirect, ID: id}
}

func (k RoomKey) Valid() bool {
	if k.ID <= 0 {
		return false
	}
	return k.Kind == RoomKindGroup || k.Kind == RoomKindDirect
}

func (k RoomKey) String() string {
	return fmt.Sprintf("%s:%d", k.Kind, k.ID)
}

// ParseRoomKey parses the "kind:id" form produced by String.
func ParseRoomKey(s string) (RoomKey, error) {
	kind, rawID, ok := strings.Cut(s, ":")
	if !ok {
		return RoomKey{}, fmt.Errorf("%w: %q", ErrInvalidRoom, s)
	}
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return RoomKey{}, fmt.Errorf("%w: %q", ErrInvalidRoom, s)
	}
	key := RoomKey{Kind: RoomKind(kind), ID: id}
	if !key.Valid() {
		return RoomKey{}, fmt.Errorf("%w: %q", ErrInvalidRoom, s)
	}
	return key, nil
}
