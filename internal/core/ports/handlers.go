package ports

import (
	"net/http"

	"huddle/internal/core/domain"
)

// Connection is one live bidirectional channel as seen by the core.
type Connection interface {
	ID() domain.ConnID
	Identity() domain.Identity
	// Send queues v for delivery without blocking. It fails when the
	// connection is closed or its send buffer is full.
	Send(v interface{}) error
	Close() error
}

type IdentityResolver interface {
	Resolve(r *http.Request) (domain.Identity, error)
}
