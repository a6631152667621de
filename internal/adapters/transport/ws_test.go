package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/ghalamif/PulseFlow/internal/domain"
	"github.com/ghalamif/PulseFlow/internal/ports"
	"github.com/ghalamif/PulseFlow/internal/stream"
)

// newWSServer runs handler on every upgraded connection.
func newWSServer(t *testing.T, handler func(*websocket.Conn)) string {
	t.Helper()
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handler(conn)
	}))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
}

func drain(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func TestWebSocketReadsFramesThenCleanClose(t *testing.T) {
	packed, err := msgpack.Marshal(map[string]any{"timestamp": 1, "value": 2})
	require.NoError(t, err)

	url := newWSServer(t, func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"timestamp":1700000000000,"value":72}`))
		_ = conn.WriteMessage(websocket.BinaryMessage, packed)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		drain(conn)
	})

	d := &WebSocketDialer{}
	conn, err := d.Dial(context.Background(), url)
	require.NoError(t, err)
	defer conn.Close()

	ctx := context.Background()
	f, err := conn.ReadFrame(ctx)
	require.NoError(t, err)
	assert.Equal(t, ports.FrameText, f.Kind)
	assert.JSONEq(t, `{"timestamp":1700000000000,"value":72}`, string(f.Data))

	f, err = conn.ReadFrame(ctx)
	require.NoError(t, err)
	assert.Equal(t, ports.FrameBinary, f.Kind)
	assert.Equal(t, packed, f.Data)

	_, err = conn.ReadFrame(ctx)
	assert.ErrorIs(t, err, ports.ErrConnClosed)
}

func TestWebSocketAbruptDropIsAnError(t *testing.T) {
	url := newWSServer(t, func(conn *websocket.Conn) {
		_ = conn.UnderlyingConn().Close()
	})

	conn, err := (&WebSocketDialer{}).Dial(context.Background(), url)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.ReadFrame(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, ports.ErrConnClosed))
}

func TestWebSocketReadHonoursContext(t *testing.T) {
	url := newWSServer(t, drain)

	conn, err := (&WebSocketDialer{}).Dial(context.Background(), url)
	require.NoError(t, err)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = conn.ReadFrame(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWebSocketLocalCloseIsClean(t *testing.T) {
	url := newWSServer(t, drain)

	conn, err := (&WebSocketDialer{}).Dial(context.Background(), url)
	require.NoError(t, err)

	errs := make(chan error, 1)
	go func() {
		_, err := conn.ReadFrame(context.Background())
		errs <- err
	}()
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, conn.Close())

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, ports.ErrConnClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("read did not return after close")
	}
}

func TestWebSocketDialRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	server.Close()

	_, err := (&WebSocketDialer{}).Dial(context.Background(), url)
	assert.Error(t, err)
}

func TestWebSocketHandshakeRejected(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(server.Close)

	_, err := (&WebSocketDialer{}).Dial(context.Background(), "ws"+strings.TrimPrefix(server.URL, "http"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestManagerOverWebSocket(t *testing.T) {
	url := newWSServer(t, func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte("hello"))
		for i, bpm := range []int{61, 62, 63, 64} {
			msg := fmt.Sprintf(`{"timestamp":%d,"value":%d}`, (i+1)*1000, bpm)
			_ = conn.WriteMessage(websocket.TextMessage, []byte(msg))
		}
		drain(conn)
	})

	m, err := stream.New(stream.Config{Target: url, MaxPoints: 3}, &WebSocketDialer{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	require.NoError(t, m.Start(context.Background()))

	require.Eventually(t, func() bool {
		s := m.Samples()
		return len(s) == 3 && s[2].BPM == 64
	}, 2*time.Second, 5*time.Millisecond)
	samples := m.Samples()
	assert.Equal(t, []domain.Sample{
		{Time: time.UnixMilli(2000).UTC(), BPM: 62},
		{Time: time.UnixMilli(3000).UTC(), BPM: 63},
		{Time: time.UnixMilli(4000).UTC(), BPM: 64},
	}, samples)
	assert.Equal(t, domain.StateOnline, m.Status())
	assert.NoError(t, m.LastError())
}
