package domain

import "encoding/json"

const (
	EventConnected     = "connected"
	EventGroupMessage  = "group-message"
	EventDirectMessage = "dm-message"
	EventIncomingCall  = "incoming-call"
	EventCallAccepted  = "call-accepted"
	EventICECandidate  = "ice-candidate"
)

// Event is an unsolicited push to a single connection.
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

type ConnectedPayload struct {
	Handle   ConnID   `json:"handle"`
	Identity Identity `json:"identity"`
}

type IncomingCall struct {
	FromUserID   UserID          `json:"from_user_id"`
	FromUsername string          `json:"from_username"`
	FromHandle   ConnID          `json:"from_handle"`
	Offer        json.RawMessage `json:"offer"`
}

type CallAccepted struct {
	Answer     json.RawMessage `json:"answer"`
	FromHandle ConnID          `json:"from_handle"`
}

type ICECandidate struct {
	Candidate  json.RawMessage `json:"candidate"`
	FromHandle ConnID          `json:"from_handle"`
}
