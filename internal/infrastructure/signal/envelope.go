package signal

import (
	"encoding/json"

	"huddle/internal/core/domain"
	apperrors "huddle/pkg/errors"
)

// Inbound message types.
const (
	TypeJoinRoom      = "join-room"
	TypeLeaveRoom     = "leave-room"
	TypeSendMessage   = "send-message"
	TypeCallUser      = "call-user"
	TypeAnswerCall    = "answer-call"
	TypeICECandidate  = "ice-candidate"
	TypeQueryPresence = "query-presence"
	TypePing          = "ping"

	TypeAck = "ack"
)

// Envelope is every client frame.
type Envelope struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type RoomPayload struct {
	Room domain.RoomKey `json:"room"`
}

// JoinResult acks a join with the room's live member count.
type JoinResult struct {
	Room    domain.RoomKey `json:"room"`
	Members int            `json:"members"`
}

type SendMessagePayload struct {
	Room    domain.RoomKey `json:"room"`
	Content string         `json:"content"`
}

type CallUserPayload struct {
	ToUserID domain.UserID   `json:"to_user_id"`
	Offer    json.RawMessage `json:"offer"`
}

type AnswerCallPayload struct {
	ToHandle domain.ConnID   `json:"to_handle"`
	Answer   json.RawMessage `json:"answer"`
}

type ICECandidatePayload struct {
	ToHandle  domain.ConnID   `json:"to_handle"`
	Candidate json.RawMessage `json:"candidate"`
}

type QueryPresencePayload struct {
	UserIDs []domain.UserID `json:"user_ids"`
}

type PresenceResult struct {
	Presence map[domain.UserID]*domain.ConnID `json:"presence"`
}

type PongResult struct {
	ServerTime int64 `json:"server_time"`
}

// Ack answers one request-bearing frame.
type Ack struct {
	Type      string      `json:"type"`
	RequestID string      `json:"request_id,omitempty"`
	OK        bool        `json:"ok"`
	Error     *AckError   `json:"error,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func okAck(requestID string, data interface{}) Ack {
	return Ack{Type: TypeAck, RequestID: requestID, OK: true, Data: data}
}

func errorAck(requestID string, appErr *apperrors.AppError) Ack {
	return Ack{
		Type:      TypeAck,
		RequestID: requestID,
		Error:     &AckError{Code: string(appErr.Code), Message: appErr.Message},
	}
}

// acknowledged reports whether msgType gets an ack. Relay frames never do.
func acknowledged(msgType string) bool {
	switch msgType {
	case TypeCallUser, TypeAnswerCall, TypeICECandidate:
		return false
	default:
		return true
	}
}
