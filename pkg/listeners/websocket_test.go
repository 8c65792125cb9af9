package listeners

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialWS(t *testing.T, l *WebSocket) *websocket.Conn {
	t.Helper()
	dialer := websocket.Dialer{
		Subprotocols:     []string{"mqtt"},
		HandshakeTimeout: 5 * time.Second,
	}
	ws, resp, err := dialer.Dial("ws://"+l.Addr().String()+"/mqtt", nil)
	require.NoError(t, err)
	assert.Equal(t, "mqtt", resp.Header.Get("Sec-WebSocket-Protocol"))
	return ws
}

func TestWebSocketEcho(t *testing.T) {
	l := NewWebSocket("ws", "127.0.0.1:0", nil)
	assert.Equal(t, "ws", l.ID())

	cancel, done := serve(t, l, echo(nil))
	defer cancel()

	ws := dialWS(t, l)
	defer ws.Close()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))

	// Text frames are not part of the MQTT stream.
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("ignored")))
	require.NoError(t, ws.WriteMessage(websocket.BinaryMessage, []byte{0xC0, 0x00}))

	mt, data, err := ws.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, mt)
	assert.Equal(t, []byte{0xC0, 0x00}, data)

	require.NoError(t, l.Close())
	waitServe(t, done)

	_, _, err = ws.ReadMessage()
	assert.Error(t, err)
}

func TestWebSocketConnAddr(t *testing.T) {
	addrs := make(chan net.Addr, 1)
	l := NewWebSocket("ws", "127.0.0.1:0", &WebSocketConfig{Path: "/custom"})

	cancel, done := serve(t, l, HandlerFunc(func(ctx context.Context, conn net.Conn) {
		addrs <- conn.RemoteAddr()
	}))
	defer cancel()

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	ws, _, err := dialer.Dial("ws://"+l.Addr().String()+"/custom", nil)
	require.NoError(t, err)
	defer ws.Close()

	select {
	case addr := <-addrs:
		assert.Equal(t, "websocket", addr.Network())
		assert.NotEmpty(t, addr.String())
	case <-time.After(5 * time.Second):
		t.Fatal("handler not called")
	}

	cancel()
	waitServe(t, done)
}

func TestWebSocketCheckOrigin(t *testing.T) {
	l := NewWebSocket("ws", "127.0.0.1:0", &WebSocketConfig{
		CheckOrigin: func(r *http.Request) bool { return r.Header.Get("Origin") == "http://allowed" },
	})
	cancel, done := serve(t, l, echo(nil))
	defer cancel()

	url := "ws://" + l.Addr().String() + "/mqtt"
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}

	_, resp, err := dialer.Dial(url, http.Header{"Origin": []string{"http://evil"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	ws, _, err := dialer.Dial(url, http.Header{"Origin": []string{"http://allowed"}})
	require.NoError(t, err)
	ws.Close()

	cancel()
	waitServe(t, done)
}
