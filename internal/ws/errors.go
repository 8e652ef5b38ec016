package ws

import "errors"

// WebSocket connection error types
var (
	ErrConnectionClosed = errors.New("websocket connection is closed")
	ErrWriteTimeout     = errors.New("websocket write timed out")
)
