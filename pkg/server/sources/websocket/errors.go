// Package websocket provides the reconnecting stream client used by
// streaming price sources.
package websocket

import "errors"

var (
	// ErrMaxRetriesExceeded indicates that the maximum connection retries have been exceeded.
	ErrMaxRetriesExceeded = errors.New("max connection retries exceeded")
	// ErrConnectionLost indicates that the connection was lost.
	ErrConnectionLost = errors.New("connection lost")
	// ErrClientClosed indicates that the client was closed.
	ErrClientClosed = errors.New("client closed")
)
