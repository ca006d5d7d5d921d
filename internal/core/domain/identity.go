package domain

type UserID int64

// MaxPresenceQuery bounds the user ids one presence query may name.
const MaxPresenceQuery = 200

// Identity is the authenticated user behind one connection. It is resolved
// once at connect time and never changes for the life of that connection.
type Identity struct {
	ID       UserID `json:"id"`
	Username string `json:"username"`
}

func (i Identity) Valid() bool {
	return i.ID > 0
}

// UserSummary is what a user sees about themselves over the HTTP API.
type UserSummary struct {
	Identity    Identity  `json:"identity"`
	Online      bool      `json:"online"`
	Handle      *ConnID   `json:"handle"`
	Rooms       []RoomKey `json:"rooms"`
	FriendCount int       `json:"friend_count"`
}
