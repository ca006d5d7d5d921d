package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"huddle/internal/core/domain"
	"huddle/internal/infrastructure/middleware"
	apperrors "huddle/pkg/errors"
	rlog "huddle/pkg/logger"
	"huddle/pkg/tracing"
	"huddle/pkg/validation"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var errUnknownType = errors.New("unknown message type")

// handleFrame decodes one client frame, routes it and acks it when the type
// expects an answer. No error here ever closes the connection.
func (s *WebSocketServer) handleFrame(ctx context.Context, conn *wsConnection, limiter *rate.Limiter, data []byte) {
	start := time.Now()

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
		appErr := apperrors.NewInvalidInputError("malformed envelope")
		s.reply(conn, errorAck("", appErr))
		s.metrics.WebSocketMessage("invalid", string(appErr.Code), time.Since(start))
		return
	}

	if limiter != nil && !limiter.Allow() {
		appErr := apperrors.NewRateLimitError()
		if acknowledged(env.Type) {
			s.reply(conn, errorAck(env.RequestID, appErr))
		}
		s.metrics.WebSocketMessage(env.Type, string(appErr.Code), time.Since(start))
		return
	}

	ctx = rlog.WithRequestID(ctx, env.RequestID)
	ctx, span := tracing.TraceWebSocketMessage(ctx, env.Type, string(conn.ID()))
	defer span.End()
	tracing.AddSpanAttributes(ctx,
		tracing.UserIDKey.Int64(int64(conn.Identity().ID)),
		tracing.RequestKey.String(env.RequestID),
	)

	result, err := s.dispatch(ctx, conn, env)

	code := "ok"
	if err != nil {
		var appErr *apperrors.AppError
		if errors.Is(err, errUnknownType) {
			appErr = apperrors.NewInvalidInputError(err.Error())
		} else {
			appErr = middleware.ToAppError(err)
		}
		code = string(appErr.Code)
		tracing.RecordError(ctx, err)
		if appErr.HTTPStatus >= 500 {
			s.ctxLog.LogError(ctx, err, "request failed", zap.String("type", env.Type))
		}
		if acknowledged(env.Type) {
			s.reply(conn, errorAck(env.RequestID, appErr))
		}
	} else if acknowledged(env.Type) {
		s.reply(conn, okAck(env.RequestID, result))
	}

	s.metrics.WebSocketMessage(env.Type, code, time.Since(start))
}

func (s *WebSocketServer) dispatch(ctx context.Context, conn *wsConnection, env Envelope) (interface{}, error) {
	switch env.Type {
	case TypeJoinRoom:
		return s.handleJoinRoom(ctx, conn, env.Payload)
	case TypeLeaveRoom:
		return s.handleLeaveRoom(ctx, conn, env.Payload)
	case TypeSendMessage:
		return s.handleSendMessage(ctx, conn, env.Payload)
	case TypeCallUser:
		return nil, s.handleCallUser(ctx, conn, env.Payload)
	case TypeAnswerCall:
		return nil, s.handleAnswerCall(ctx, conn, env.Payload)
	case TypeICECandidate:
		return nil, s.handleICECandidate(ctx, conn, env.Payload)
	case TypeQueryPresence:
		return s.handleQueryPresence(conn, env.Payload)
	case TypePing:
		return PongResult{ServerTime: time.Now().UnixMilli()}, nil
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownType, env.Type)
	}
}

func (s *WebSocketServer) handleJoinRoom(ctx context.Context, conn *wsConnection, raw json.RawMessage) (interface{}, error) {
	var payload RoomPayload
	if err := decodePayload(raw, &payload); err != nil {
		return nil, err
	}

	ctx, span := tracing.TraceRoomOperation(ctx, "join", payload.Room.String())
	defer span.End()

	if err := s.hub.JoinRoom(ctx, payload.Room, conn.ID()); err != nil {
		s.ctxLog.LogDebug(ctx, "join rejected", zap.Stringer("room", payload.Room), zap.Error(err))
		return nil, err
	}
	return JoinResult{Room: payload.Room, Members: s.hub.Rooms.MemberCount(payload.Room)}, nil
}

func (s *WebSocketServer) handleLeaveRoom(ctx context.Context, conn *wsConnection, raw json.RawMessage) (interface{}, error) {
	var payload RoomPayload
	if err := decodePayload(raw, &payload); err != nil {
		return nil, err
	}
	if !payload.Room.Valid() {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidRoom, payload.Room)
	}

	_, span := tracing.TraceRoomOperation(ctx, "leave", payload.Room.String())
	defer span.End()

	s.hub.LeaveRoom(payload.Room, conn.ID())
	return RoomPayload{Room: payload.Room}, nil
}

func (s *WebSocketServer) handleSendMessage(ctx context.Context, conn *wsConnection, raw json.RawMessage) (interface{}, error) {
	var payload SendMessagePayload
	if err := decodePayload(raw, &payload); err != nil {
		return nil, err
	}

	identity := conn.Identity()
	return s.hub.Fanout.Send(ctx, payload.Room, &identity, payload.Content)
}

func (s *WebSocketServer) handleCallUser(ctx context.Context, conn *wsConnection, raw json.RawMessage) error {
	var payload CallUserPayload
	if err := decodePayload(raw, &payload); err != nil {
		return err
	}

	ctx, span := tracing.TraceSignal(ctx, domain.EventIncomingCall, string(conn.ID()), "")
	defer span.End()

	delivered := s.hub.Relay.RequestCall(conn.Identity(), conn.ID(), payload.ToUserID, payload.Offer)
	tracing.AddSpanAttributes(ctx, tracing.DeliveredKey.Bool(delivered), attribute.Int64("signal.to_user_id", int64(payload.ToUserID)))
	return nil
}

func (s *WebSocketServer) handleAnswerCall(ctx context.Context, conn *wsConnection, raw json.RawMessage) error {
	var payload AnswerCallPayload
	if err := decodePayload(raw, &payload); err != nil {
		return err
	}

	if !validTarget(conn, payload.ToHandle) {
		return nil
	}

	ctx, span := tracing.TraceSignal(ctx, domain.EventCallAccepted, string(conn.ID()), string(payload.ToHandle))
	defer span.End()

	delivered := s.hub.Relay.AnswerCall(conn.ID(), payload.ToHandle, payload.Answer)
	tracing.AddSpanAttributes(ctx, tracing.DeliveredKey.Bool(delivered))
	return nil
}

func (s *WebSocketServer) handleICECandidate(ctx context.Context, conn *wsConnection, raw json.RawMessage) error {
	var payload ICECandidatePayload
	if err := decodePayload(raw, &payload); err != nil {
		return err
	}

	if !validTarget(conn, payload.ToHandle) {
		return nil
	}

	ctx, span := tracing.TraceSignal(ctx, domain.EventICECandidate, string(conn.ID()), string(payload.ToHandle))
	defer span.End()

	delivered := s.hub.Relay.RelayICECandidate(conn.ID(), payload.ToHandle, payload.Candidate)
	tracing.AddSpanAttributes(ctx, tracing.DeliveredKey.Bool(delivered))
	return nil
}

// validTarget reports whether a relay target is a well-formed handle. Like an
// unknown handle, a malformed one is dropped without telling the sender.
func validTarget(conn *wsConnection, target domain.ConnID) bool {
	if err := validation.ValidateHandle(string(target)); err != nil {
		conn.logger.Debugw("relay target rejected", "to_handle", target, "error", err)
		return false
	}
	return true
}

func (s *WebSocketServer) handleQueryPresence(conn *wsConnection, raw json.RawMessage) (interface{}, error) {
	var payload QueryPresencePayload
	if err := decodePayload(raw, &payload); err != nil {
		return nil, err
	}
	if len(payload.UserIDs) > domain.MaxPresenceQuery {
		return nil, apperrors.NewInvalidInputError("too many user_ids").WithContext("max", domain.MaxPresenceQuery)
	}
	return PresenceResult{Presence: s.hub.QueryPresence(payload.UserIDs)}, nil
}

func (s *WebSocketServer) reply(conn *wsConnection, ack Ack) {
	if err := conn.Send(ack); err != nil {
		conn.logger.Debugw("ack dropped", "request_id", ack.RequestID, "error", err)
	}
}

func decodePayload(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return apperrors.NewInvalidInputError("payload is required")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return apperrors.NewInvalidInputError("malformed payload")
	}
	return nil
}
