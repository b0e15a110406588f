package collaboration

import "errors"

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrSendBufferFull   = errors.New("send buffer full")
	ErrClientNotFound   = errors.New("client not found")
	ErrInvalidMessage   = errors.New("invalid message format")
)
