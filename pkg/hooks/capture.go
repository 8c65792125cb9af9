package hooks

import (
	"context"
	"log/slog"
	"time"

	"github.com/bromq-dev/mqttwire/pkg/capture"
	"github.com/bromq-dev/mqttwire/pkg/packet"
	"github.com/bromq-dev/mqttwire/pkg/tap"
)

// CaptureHook writes every tapped frame, including malformed ones, to a capture.Writer.
type CaptureHook struct {
	writer *capture.Writer
	logger *slog.Logger
	now    func() time.Time
}

// CaptureConfig configures the capture hook.
type CaptureConfig struct {
	// Writer receives the records. Required.
	Writer *capture.Writer

	// Logger reports write failures (default: slog.Default()).
	Logger *slog.Logger
}

// NewCaptureHook creates a capture hook.
func NewCaptureHook(cfg CaptureConfig) *CaptureHook {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &CaptureHook{
		writer: cfg.Writer,
		logger: cfg.Logger,
		now:    time.Now,
	}
}

func (h *CaptureHook) ID() string { return "capture" }

func (h *CaptureHook) OnPacket(ctx context.Context, conn tap.ConnInfo, dir tap.Direction, pkt packet.Packet, frame []byte) {
	h.write(conn, dir, frame, nil)
}

func (h *CaptureHook) OnDecodeError(ctx context.Context, conn tap.ConnInfo, dir tap.Direction, frame []byte, err error) {
	h.write(conn, dir, frame, err)
}

func (h *CaptureHook) write(conn tap.ConnInfo, dir tap.Direction, frame []byte, decodeErr error) {
	rec := capture.Record{
		Time:      h.now(),
		ConnID:    conn.ID,
		Direction: dir.String(),
		Frame:     frame,
	}
	if decodeErr != nil {
		rec.Error = decodeErr.Error()
	}
	if err := h.writer.Write(rec); err != nil {
		h.logger.Error("capture write failed", "conn_id", conn.ID, "error", err)
	}
}
