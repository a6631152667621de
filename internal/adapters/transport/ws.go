package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ghalamif/PulseFlow/internal/ports"
)

// WebSocketDialer opens ws:// and wss:// connections.
type WebSocketDialer struct {
	HandshakeTimeout time.Duration
	Header           http.Header
	ReadLimit        int64
}

func (d *WebSocketDialer) Dial(ctx context.Context, target string) (ports.Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
	}
	if dialer.HandshakeTimeout <= 0 {
		dialer.HandshakeTimeout = 45 * time.Second
	}

	conn, resp, err := dialer.DialContext(ctx, target, d.Header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket handshake: %s: %w", resp.Status, err)
		}
		return nil, err
	}
	if d.ReadLimit > 0 {
		conn.SetReadLimit(d.ReadLimit)
	}
	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn      *websocket.Conn
	closeOnce sync.Once
	closeErr  error
	closing   bool
	mu        sync.Mutex
}

func (c *wsConn) ReadFrame(ctx context.Context) (ports.Frame, error) {
	// gorilla reads are not cancellable, so a done ctx tears the socket down.
	stop := context.AfterFunc(ctx, func() { _ = c.conn.Close() })
	defer stop()

	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ports.Frame{}, ctx.Err()
			}
			return ports.Frame{}, c.mapReadErr(err)
		}
		switch kind {
		case websocket.TextMessage:
			return ports.Frame{Kind: ports.FrameText, Data: data}, nil
		case websocket.BinaryMessage:
			return ports.Frame{Kind: ports.FrameBinary, Data: data}, nil
		}
	}
}

func (c *wsConn) mapReadErr(err error) error {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return ports.ErrConnClosed
	}
	c.mu.Lock()
	closing := c.closing
	c.mu.Unlock()
	if closing || errors.Is(err, websocket.ErrCloseSent) {
		return ports.ErrConnClosed
	}
	return err
}

// Close sends a normal close frame and releases the socket.
func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closing = true
		c.mu.Unlock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

var _ ports.Dialer = (*WebSocketDialer)(nil)
