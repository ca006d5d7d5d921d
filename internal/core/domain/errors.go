package domain

import "errors"

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrRoomFull           = errors.New("room is full")
	ErrInvalidRoom        = errors.New("invalid room")
	ErrInvalidMessage     = errors.New("invalid message")
	ErrStorage            = errors.New("storage error")
	ErrConnectionNotFound = errors.New("connection not found")
	ErrConnectionClosed   = errors.New("connection closed")
	ErrSendBufferFull     = errors.New("send buffer full")
)
