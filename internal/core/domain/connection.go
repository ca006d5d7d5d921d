package domain

import "github.com/google/uuid"

// ConnID is the opaque handle of one live connection. Handles are random and
// are never reused once the connection closes.
type ConnID string

func NewConnID() ConnID {
	return ConnID(uuid.NewString())
}
