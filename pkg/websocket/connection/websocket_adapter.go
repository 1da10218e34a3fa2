package connection

import (
	"context"
	"errors"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// gorillaWebSocketConn adapts gorilla/websocket.Conn to our interface.
type gorillaWebSocketConn struct {
	conn *websocket.Conn
}

func (g *gorillaWebSocketConn) ReadMessage() (int, []byte, error) {
	return g.conn.ReadMessage()
}

func (g *gorillaWebSocketConn) WriteMessage(messageType int, data []byte) error {
	return g.conn.WriteMessage(messageType, data)
}

func (g *gorillaWebSocketConn) Close() error {
	return g.conn.Close()
}

func (g *gorillaWebSocketConn) SetReadDeadline(t time.Time) error {
	return g.conn.SetReadDeadline(t)
}

func (g *gorillaWebSocketConn) SetWriteDeadline(t time.Time) error {
	return g.conn.SetWriteDeadline(t)
}

func (g *gorillaWebSocketConn) SetReadLimit(limit int64) {
	g.conn.SetReadLimit(limit)
}

// Probe checks that the underlying socket descriptor is still valid. On TLS
// connections it unwraps to the inner net.Conn first. Connections that do not
// expose a raw descriptor pass the probe; the read loop and the data-flow
// monitor remain the authority for those.
func (g *gorillaWebSocketConn) Probe() error {
	raw := g.conn.UnderlyingConn()
	if raw == nil {
		return errors.New("no underlying connection")
	}

	if unwrapper, ok := raw.(interface{ NetConn() net.Conn }); ok {
		if inner := unwrapper.NetConn(); inner != nil {
			raw = inner
		}
	}

	sysConn, ok := raw.(syscall.Conn)
	if !ok {
		return nil
	}
	rawConn, err := sysConn.SyscallConn()
	if err != nil {
		return err
	}
	return rawConn.Control(func(uintptr) {})
}

// gorillaWebSocketDialer adapts gorilla/websocket.Dialer to our interface.
type gorillaWebSocketDialer struct {
	dialer *websocket.Dialer
}

// NewGorillaDialer creates a production WebSocket dialer using gorilla/websocket.
func NewGorillaDialer(config Config) WebSocketDialer {
	return &gorillaWebSocketDialer{
		dialer: &websocket.Dialer{
			HandshakeTimeout: config.HandshakeTimeout,
			ReadBufferSize:   config.ReadBufferSize,
			WriteBufferSize:  config.WriteBufferSize,
		},
	}
}

func (g *gorillaWebSocketDialer) DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (WebSocketConn, *http.Response, error) {
	conn, resp, err := g.dialer.DialContext(ctx, urlStr, requestHeader)
	if err != nil {
		return nil, resp, err
	}

	return &gorillaWebSocketConn{conn: conn}, resp, nil
}
