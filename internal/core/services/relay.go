package services

import (
	"encoding/json"

	"huddle/internal/core/domain"
	"huddle/internal/core/ports"

	"go.uber.org/zap"
)

// SignalingRelay forwards call negotiation between two connections. It holds
// no call state and never looks inside the payloads. The sender fields of
// every relayed event are taken from the authenticated connection, not from
// the client. An unreachable target is dropped silently.
type SignalingRelay struct {
	presence *PresenceTable
	conns    *ConnectionRegistry
	metrics  ports.MetricsRecorder
	logger   *zap.SugaredLogger
}

func NewSignalingRelay(presence *PresenceTable, conns *ConnectionRegistry, metrics ports.MetricsRecorder, logger *zap.SugaredLogger) *SignalingRelay {
	return &SignalingRelay{
		presence: presence,
		conns:    conns,
		metrics:  metrics,
		logger:   logger,
	}
}

// RequestCall delivers an offer to the current connection of toUserID.
func (s *SignalingRelay) RequestCall(from domain.Identity, fromHandle domain.ConnID, toUserID domain.UserID, offer json.RawMessage) bool {
	target, ok := s.presence.Lookup(toUserID)
	if !ok {
		s.metrics.SignalRelayed(domain.EventIncomingCall, false)
		s.logger.Debugw("call target offline", "from_user_id", from.ID, "to_user_id", toUserID)
		return false
	}
	return s.deliver(target, domain.EventIncomingCall, domain.IncomingCall{
		FromUserID:   from.ID,
		FromUsername: from.Username,
		FromHandle:   fromHandle,
		Offer:        offer,
	})
}

// AnswerCall delivers an answer straight to the caller's handle.
func (s *SignalingRelay) AnswerCall(fromHandle, toHandle domain.ConnID, answer json.RawMessage) bool {
	return s.deliver(toHandle, domain.EventCallAccepted, domain.CallAccepted{
		Answer:     answer,
		FromHandle: fromHandle,
	})
}

func (s *SignalingRelay) RelayICECandidate(fromHandle, toHandle domain.ConnID, candidate json.RawMessage) bool {
	return s.deliver(toHandle, domain.EventICECandidate, domain.ICECandidate{
		Candidate:  candidate,
		FromHandle: fromHandle,
	})
}

func (s *SignalingRelay) deliver(target domain.ConnID, eventType string, payload interface{}) bool {
	err := s.conns.Deliver(target, domain.Event{Type: eventType, Payload: payload})
	delivered := err == nil
	s.metrics.SignalRelayed(eventType, delivered)
	if !delivered {
		s.logger.Debugw("signal dropped", "type", eventType, "conn_id", target, "error", err)
	}
	return delivered
}
