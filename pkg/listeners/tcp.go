package listeners

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"
)

// TCPConfig holds configuration for TCP listeners.
type TCPConfig struct {
	// TLSConfig enables TLS if set.
	TLSConfig *tls.Config

	// Logger receives accept errors. Default: slog.Default().
	Logger *slog.Logger
}

// TCP is a TCP listener.
type TCP struct {
	id       string
	addr     string
	config   *TCPConfig
	listener net.Listener
	mu       sync.Mutex
	tracker
}

// NewTCP creates a new TCP listener.
// Use config.TLSConfig to enable TLS.
func NewTCP(id, addr string, config *TCPConfig) *TCP {
	if config == nil {
		config = &TCPConfig{}
	}
	t := &TCP{
		id:     id,
		addr:   addr,
		config: config,
	}
	t.init(config.Logger)
	return t
}

// ID returns the listener ID.
func (t *TCP) ID() string {
	return t.id
}

// Addr returns the listener's address.
// Returns nil if the listener hasn't started.
func (t *TCP) Addr() net.Addr {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listener == nil {
		return nil
	}
	return t.listener.Addr()
}

// Listen binds the TCP address.
func (t *TCP) Listen() error {
	if t.isClosed() {
		return ErrListenerClosed
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listener != nil {
		return nil
	}

	var l net.Listener
	var err error
	if t.config.TLSConfig != nil {
		l, err = tls.Listen("tcp", t.addr, t.config.TLSConfig)
	} else {
		l, err = net.Listen("tcp", t.addr)
	}
	if err != nil {
		return err
	}
	t.listener = l
	return nil
}

// Serve accepts connections until ctx is done or Close is called.
func (t *TCP) Serve(ctx context.Context, handler ConnectionHandler) error {
	if err := t.Listen(); err != nil {
		return err
	}
	t.mu.Lock()
	l := t.listener
	t.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { t.Close() })
	defer stop()

	var delay time.Duration
	for {
		conn, err := l.Accept()
		if err != nil {
			if t.isClosed() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			// Back off on transient accept errors such as EMFILE.
			if delay == 0 {
				delay = 5 * time.Millisecond
			} else if delay *= 2; delay > time.Second {
				delay = time.Second
			}
			t.log.Warn("accept failed", "listener", t.id, "error", err, "retry_in", delay)
			time.Sleep(delay)
			continue
		}
		delay = 0
		go t.handle(ctx, conn, handler)
	}
}

// Close stops the listener and waits for connection handlers to return.
func (t *TCP) Close() error {
	return t.shutdown(func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.listener != nil {
			t.listener.Close()
		}
	})
}
