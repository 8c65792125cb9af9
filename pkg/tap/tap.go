// Package tap decodes the MQTT traffic of accepted connections and reports
// every packet to registered hooks. With an upstream configured it also relays
// the traffic, forwarding only packets that decoded cleanly.
package tap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bromq-dev/mqttwire/pkg/packet"
)

// Config configures a Tap.
type Config struct {
	// Upstream is the MQTT server to relay to. Empty means the tap only reads.
	Upstream string

	// DialTimeout bounds the upstream dial (default: 10s).
	DialTimeout time.Duration

	// Dial overrides how the upstream connection is made.
	Dial func(ctx context.Context, network, addr string) (net.Conn, error)

	// DecodeOptions applies to both directions.
	DecodeOptions packet.DecodeOptions

	// MaxPacketSize rejects larger packets before reading their body (default: packet.MaxPacketSize).
	MaxPacketSize int

	// BufferSize is the initial read buffer per direction (default: 4096).
	BufferSize int

	// Logger is the slog.Logger to use (default: slog.Default()).
	Logger *slog.Logger
}

// Tap handles connections from a listener.
type Tap struct {
	config *Config
	hooks  *Hooks
	logger *slog.Logger
	active atomic.Int64
}

// New creates a Tap. A nil config reads without relaying.
func New(config *Config) *Tap {
	if config == nil {
		config = &Config{}
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.DialTimeout == 0 {
		config.DialTimeout = 10 * time.Second
	}
	if config.Dial == nil {
		d := &net.Dialer{Timeout: config.DialTimeout}
		config.Dial = d.DialContext
	}
	if config.BufferSize == 0 {
		config.BufferSize = 4096
	}
	return &Tap{
		config: config,
		hooks:  NewHooks(),
		logger: config.Logger,
	}
}

// AddHook registers a hook with the tap.
func (t *Tap) AddHook(hook Hook) {
	t.hooks.Register(hook)
}

// Active returns the number of connections currently being handled.
func (t *Tap) Active() int64 {
	return t.active.Load()
}

// HandleConnection taps conn until it ends, ctx is done, or a packet fails to decode.
// The caller closes conn.
func (t *Tap) HandleConnection(ctx context.Context, conn net.Conn) {
	t.active.Add(1)
	defer t.active.Add(-1)

	info := ConnInfo{
		ID:          uuid.NewString(),
		RemoteAddr:  conn.RemoteAddr().String(),
		Upstream:    t.config.Upstream,
		ConnectedAt: time.Now(),
	}
	t.hooks.OnConnect(ctx, info)

	err := t.serve(ctx, info, conn)
	if err != nil {
		t.logger.Debug("tap connection ended", "conn_id", info.ID, "error", err)
	}
	t.hooks.OnDisconnect(ctx, info, err)
}

func (t *Tap) serve(ctx context.Context, info ConnInfo, conn net.Conn) error {
	var closing atomic.Bool
	var once sync.Once
	closeAll := func(conns ...net.Conn) func() {
		return func() {
			once.Do(func() {
				closing.Store(true)
				for _, c := range conns {
					c.Close()
				}
			})
		}
	}

	if t.config.Upstream == "" {
		stop := context.AfterFunc(ctx, closeAll(conn))
		defer stop()
		return quiet(t.pump(ctx, info, Inbound, conn, nil), &closing)
	}

	dialCtx, cancel := context.WithTimeout(ctx, t.config.DialTimeout)
	upstream, err := t.config.Dial(dialCtx, "tcp", t.config.Upstream)
	cancel()
	if err != nil {
		return fmt.Errorf("tap: dial upstream %s: %w", t.config.Upstream, err)
	}
	defer upstream.Close()

	shutdown := closeAll(conn, upstream)
	stop := context.AfterFunc(ctx, shutdown)
	defer stop()

	var g errgroup.Group
	g.Go(func() error {
		defer shutdown()
		return quiet(t.pump(ctx, info, Inbound, conn, upstream), &closing)
	})
	g.Go(func() error {
		defer shutdown()
		return quiet(t.pump(ctx, info, Outbound, upstream, conn), &closing)
	})
	return g.Wait()
}

// pump decodes packets from src and, if dst is set, writes their re-encoding to dst.
func (t *Tap) pump(ctx context.Context, info ConnInfo, dir Direction, src io.Reader, dst io.Writer) error {
	opts := []packet.ReaderOption{
		packet.WithBufferSize(t.config.BufferSize),
		packet.WithDecodeOptions(t.config.DecodeOptions),
	}
	if t.config.MaxPacketSize > 0 {
		opts = append(opts, packet.WithMaxPacketSize(t.config.MaxPacketSize))
	}
	r := packet.NewReader(src, opts...)

	for {
		pkt, frame, err := r.ReadFrame()
		if err != nil {
			var de *packet.DecodeError
			if errors.As(err, &de) {
				t.logger.Warn("closing connection on malformed packet",
					"conn_id", info.ID,
					"direction", dir.String(),
					"packet_type", de.Type.String(),
					"kind", packet.Kind(err),
				)
				t.hooks.OnDecodeError(ctx, info, dir, frame, err)
			}
			return err
		}

		t.hooks.OnPacket(ctx, info, dir, pkt, frame)

		if dst != nil {
			if _, err := packet.WritePacket(dst, pkt); err != nil {
				return fmt.Errorf("tap: relay %s %s: %w", dir, pkt.Type(), err)
			}
		}
	}
}

// quiet drops the errors that mean the stream simply ended: EOF, and any
// I/O error after the tap itself closed the connections. Decode errors are kept.
func quiet(err error, closing *atomic.Bool) error {
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	var de *packet.DecodeError
	if errors.As(err, &de) {
		return err
	}
	if closing.Load() || errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
