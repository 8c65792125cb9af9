package hooks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bromq-dev/mqttwire/pkg/capture"
	"github.com/bromq-dev/mqttwire/pkg/packet"
	"github.com/bromq-dev/mqttwire/pkg/tap"
)

// StreamAdder is the part of a Redis client the hook uses.
// *redis.Client and *redis.ClusterClient satisfy it.
type StreamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// RedisHook appends every tapped frame to a Redis stream so other processes
// can consume the traffic. Each entry holds the msgpack-encoded capture.Record
// under "record" plus a few plain fields for filtering.
type RedisHook struct {
	client  StreamAdder
	closer  func() error
	stream  string
	maxLen  int64
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// RedisConfig configures the Redis hook.
type RedisConfig struct {
	// Addr is the Redis server address (default: "localhost:6379").
	Addr string

	// Password for Redis authentication (optional).
	Password string

	// DB is the Redis database number (default: 0).
	DB int

	// Stream is the stream key (default: "mqttwire:frames").
	Stream string

	// MaxLen caps the stream length approximately (default: 100000).
	MaxLen int64

	// Timeout bounds each XADD (default: 1s).
	Timeout time.Duration

	// Client allows providing a pre-configured client.
	// If set, Addr/Password/DB are ignored and the hook never closes it.
	Client StreamAdder

	// Logger reports failed writes (default: slog.Default()).
	Logger *slog.Logger
}

// NewRedisHook creates a Redis stream hook. When it creates its own client it
// pings the server first.
func NewRedisHook(ctx context.Context, cfg RedisConfig) (*RedisHook, error) {
	if cfg.Addr == "" {
		cfg.Addr = "localhost:6379"
	}
	if cfg.Stream == "" {
		cfg.Stream = "mqttwire:frames"
	}
	if cfg.MaxLen == 0 {
		cfg.MaxLen = 100000
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	h := &RedisHook{
		client:  cfg.Client,
		stream:  cfg.Stream,
		maxLen:  cfg.MaxLen,
		timeout: cfg.Timeout,
		logger:  cfg.Logger,
		now:     time.Now,
	}

	if h.client == nil {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		})

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("hooks: redis ping %s: %w", cfg.Addr, err)
		}

		h.client = client
		h.closer = client.Close
		h.logger.Info("redis hook initialized",
			"addr", cfg.Addr,
			"stream", cfg.Stream,
		)
	}
	return h, nil
}

func (h *RedisHook) ID() string { return "redis" }

// Close closes the Redis client if the hook created it.
func (h *RedisHook) Close() error {
	if h.closer != nil {
		return h.closer()
	}
	return nil
}

func (h *RedisHook) OnPacket(ctx context.Context, conn tap.ConnInfo, dir tap.Direction, pkt packet.Packet, frame []byte) {
	h.add(ctx, conn, dir, pkt.Type().String(), frame, nil)
}

func (h *RedisHook) OnDecodeError(ctx context.Context, conn tap.ConnInfo, dir tap.Direction, frame []byte, err error) {
	var de *packet.DecodeError
	t := "unknown"
	if errors.As(err, &de) {
		t = de.Type.String()
	}
	h.add(ctx, conn, dir, t, frame, err)
}

func (h *RedisHook) add(ctx context.Context, conn tap.ConnInfo, dir tap.Direction, packetType string, frame []byte, decodeErr error) {
	rec := capture.Record{
		Time:      h.now(),
		ConnID:    conn.ID,
		Direction: dir.String(),
		Frame:     frame,
	}
	values := map[string]any{
		"conn_id":   conn.ID,
		"direction": dir.String(),
		"type":      packetType,
	}
	if decodeErr != nil {
		rec.Error = decodeErr.Error()
		values["kind"] = packet.Kind(decodeErr)
	}

	data, err := rec.Marshal()
	if err != nil {
		h.logger.Error("redis record encode failed", "conn_id", conn.ID, "error", err)
		return
	}
	values["record"] = data

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	err = h.client.XAdd(ctx, &redis.XAddArgs{
		Stream: h.stream,
		MaxLen: h.maxLen,
		Approx: true,
		Values: values,
	}).Err()
	if err != nil {
		h.logger.Error("redis xadd failed", "conn_id", conn.ID, "stream", h.stream, "error", err)
	}
}
