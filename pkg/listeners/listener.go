// Package listeners accepts MQTT transport connections and hands each one to a
// ConnectionHandler on its own goroutine.
package listeners

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
)

// ErrListenerClosed is returned by Close on an already closed listener
// and by Listen after Close.
var ErrListenerClosed = errors.New("listener already closed")

// ConnectionHandler handles new connections from listeners.
// HandleConnection owns conn and returns when it is done with it.
type ConnectionHandler interface {
	HandleConnection(ctx context.Context, conn net.Conn)
}

// HandlerFunc adapts a function to ConnectionHandler.
type HandlerFunc func(ctx context.Context, conn net.Conn)

// HandleConnection calls f(ctx, conn).
func (f HandlerFunc) HandleConnection(ctx context.Context, conn net.Conn) {
	f(ctx, conn)
}

// Listener is the interface that all transport listeners implement.
type Listener interface {
	// ID returns the unique identifier for this listener.
	ID() string

	// Addr returns the bound address, or nil before Listen.
	Addr() net.Addr

	// Listen binds the listener's address. Serve calls it if needed.
	Listen() error

	// Serve accepts connections and passes each to handler on a new goroutine.
	// It blocks until ctx is done or Close is called, then returns nil.
	Serve(ctx context.Context, handler ConnectionHandler) error

	// Close stops accepting, closes open connections, and waits for their handlers.
	Close() error
}

// tracker records the live connections of a listener so Close can end them
// and wait for their handlers.
type tracker struct {
	mu     sync.Mutex
	wg     sync.WaitGroup
	conns  map[net.Conn]struct{}
	closed bool
	log    *slog.Logger
}

func (t *tracker) init(log *slog.Logger) {
	if log == nil {
		log = slog.Default()
	}
	t.conns = make(map[net.Conn]struct{})
	t.log = log
}

// handle runs handler for conn unless the listener is closing.
func (t *tracker) handle(ctx context.Context, conn net.Conn, handler ConnectionHandler) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		conn.Close()
		return
	}
	t.conns[conn] = struct{}{}
	t.wg.Add(1)
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		delete(t.conns, conn)
		t.mu.Unlock()
		conn.Close()
		t.wg.Done()
	}()
	handler.HandleConnection(ctx, conn)
}

func (t *tracker) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// shutdown marks the tracker closed, runs stop, closes every live
// connection, and waits for handlers to return.
func (t *tracker) shutdown(stop func()) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrListenerClosed
	}
	t.closed = true
	for conn := range t.conns {
		conn.Close()
	}
	t.mu.Unlock()

	if stop != nil {
		stop()
	}
	t.wg.Wait()
	return nil
}
