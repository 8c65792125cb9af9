package listeners

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketConfig holds configuration for WebSocket listeners.
type WebSocketConfig struct {
	// TLSConfig enables TLS if set.
	TLSConfig *tls.Config

	// Path is the URL path to listen on. Default: "/mqtt".
	Path string

	// CheckOrigin is a function to validate the Origin header.
	// If nil, all origins are allowed.
	CheckOrigin func(r *http.Request) bool

	// Logger receives upgrade failures. Default: slog.Default().
	Logger *slog.Logger
}

// WebSocket is a WebSocket listener. Each binary message carries part of the
// MQTT byte stream; text messages are ignored.
type WebSocket struct {
	id       string
	addr     string
	config   *WebSocketConfig
	server   *http.Server
	listener net.Listener
	upgrader websocket.Upgrader
	mu       sync.Mutex
	tracker
}

// NewWebSocket creates a new WebSocket listener.
func NewWebSocket(id, addr string, config *WebSocketConfig) *WebSocket {
	if config == nil {
		config = &WebSocketConfig{}
	}
	if config.Path == "" {
		config.Path = "/mqtt"
	}
	checkOrigin := config.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}

	w := &WebSocket{
		id:     id,
		addr:   addr,
		config: config,
		upgrader: websocket.Upgrader{
			Subprotocols: []string{"mqtt"},
			CheckOrigin:  checkOrigin,
		},
	}
	w.init(config.Logger)
	return w
}

// ID returns the listener ID.
func (w *WebSocket) ID() string {
	return w.id
}

// Addr returns the listener's address, or nil before Listen.
func (w *WebSocket) Addr() net.Addr {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.listener == nil {
		return nil
	}
	return w.listener.Addr()
}

// Listen binds the HTTP address.
func (w *WebSocket) Listen() error {
	if w.isClosed() {
		return ErrListenerClosed
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.listener != nil {
		return nil
	}

	var ln net.Listener
	var err error
	if w.config.TLSConfig != nil {
		ln, err = tls.Listen("tcp", w.addr, w.config.TLSConfig)
	} else {
		ln, err = net.Listen("tcp", w.addr)
	}
	if err != nil {
		return err
	}
	w.listener = ln
	return nil
}

// Serve runs the HTTP server until ctx is done or Close is called.
func (w *WebSocket) Serve(ctx context.Context, handler ConnectionHandler) error {
	if err := w.Listen(); err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc(w.config.Path, func(rw http.ResponseWriter, r *http.Request) {
		w.handleWebSocket(ctx, handler, rw, r)
	})

	w.mu.Lock()
	ln := w.listener
	w.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := w.server
	w.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { w.Close() })
	defer stop()

	err := srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) || w.isClosed() {
		return nil
	}
	return err
}

func (w *WebSocket) handleWebSocket(ctx context.Context, handler ConnectionHandler, rw http.ResponseWriter, r *http.Request) {
	if w.isClosed() {
		http.Error(rw, "server closing", http.StatusServiceUnavailable)
		return
	}

	ws, err := w.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		w.log.Debug("websocket upgrade failed", "listener", w.id, "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	w.handle(ctx, newWSConn(ws, r.RemoteAddr), handler)
}

// Close stops the WebSocket server and waits for connection handlers to return.
// Upgraded connections are hijacked from the HTTP server, so they are closed here.
func (w *WebSocket) Close() error {
	return w.shutdown(func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		if w.server != nil {
			w.server.Close()
		} else if w.listener != nil {
			w.listener.Close()
		}
	})
}

// wsConn wraps websocket.Conn to implement net.Conn.
type wsConn struct {
	*websocket.Conn
	reader     io.Reader
	remoteAddr string
	readMu     sync.Mutex
	writeMu    sync.Mutex
}

func newWSConn(ws *websocket.Conn, remoteAddr string) *wsConn {
	return &wsConn{Conn: ws, remoteAddr: remoteAddr}
}

func (c *wsConn) Read(p []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	for {
		if c.reader == nil {
			messageType, r, err := c.Conn.NextReader()
			if err != nil {
				var ce *websocket.CloseError
				if errors.As(err, &ce) {
					return 0, io.EOF
				}
				return 0, err
			}
			// MQTT over WebSocket uses binary messages
			if messageType != websocket.BinaryMessage {
				continue
			}
			c.reader = r
		}

		n, err := c.reader.Read(p)
		if err == io.EOF {
			c.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

// Write sends p as one binary message.
func (c *wsConn) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.Conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *wsConn) RemoteAddr() net.Addr {
	return &wsAddr{addr: c.remoteAddr}
}

func (c *wsConn) LocalAddr() net.Addr {
	return c.Conn.LocalAddr()
}

func (c *wsConn) SetDeadline(t time.Time) error {
	if err := c.SetReadDeadline(t); err != nil {
		return err
	}
	return c.SetWriteDeadline(t)
}

func (c *wsConn) SetReadDeadline(t time.Time) error {
	return c.Conn.SetReadDeadline(t)
}

func (c *wsConn) SetWriteDeadline(t time.Time) error {
	return c.Conn.SetWriteDeadline(t)
}

// wsAddr implements net.Addr for WebSocket connections.
type wsAddr struct {
	addr string
}

func (a *wsAddr) Network() string { return "websocket" }
func (a *wsAddr) String() string  { return a.addr }
