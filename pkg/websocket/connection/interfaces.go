package connection

import (
	"context"
	"net/http"
	"time"
)

// WebSocketConn abstracts the gorilla/websocket.Conn for testability.
type WebSocketConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	// Probe is a cheap, non-blocking check of the underlying socket handle,
	// the moral equivalent of fileno() returning without error. It must not
	// perform I/O.
	Probe() error
}

// WebSocketDialer abstracts websocket dialing for testability.
type WebSocketDialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (WebSocketConn, *http.Response, error)
}
