// Package hooks provides tap.Hook implementations for logging, metrics,
// capture files, and Redis streams.
package hooks

import (
	"context"
	"log/slog"

	"github.com/bromq-dev/mqttwire/pkg/packet"
	"github.com/bromq-dev/mqttwire/pkg/tap"
)

// LoggerHook logs tap events using slog.
type LoggerHook struct {
	logger *slog.Logger
	level  LogLevel
}

// LogLevel controls which events are logged.
type LogLevel int

const (
	// LogLevelConnection logs connect/disconnect events.
	LogLevelConnection LogLevel = 1 << iota
	// LogLevelPacket logs every decoded packet at debug level.
	LogLevelPacket
	// LogLevelError logs decode failures.
	LogLevelError
	// LogLevelAll logs all events.
	LogLevelAll = LogLevelConnection | LogLevelPacket | LogLevelError
)

// LoggerConfig configures the logger hook.
type LoggerConfig struct {
	// Logger is the slog.Logger to use (default: slog.Default()).
	Logger *slog.Logger

	// Level controls which events are logged (default: LogLevelAll).
	Level LogLevel
}

// NewLoggerHook creates a new logging hook.
func NewLoggerHook(cfg LoggerConfig) *LoggerHook {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Level == 0 {
		cfg.Level = LogLevelAll
	}
	return &LoggerHook{
		logger: cfg.Logger,
		level:  cfg.Level,
	}
}

func (h *LoggerHook) ID() string { return "logger" }

// ConnectionHook implementation

func (h *LoggerHook) OnConnect(ctx context.Context, conn tap.ConnInfo) {
	if h.level&LogLevelConnection == 0 {
		return
	}
	h.logger.Info("connection opened",
		"conn_id", conn.ID,
		"remote_addr", conn.RemoteAddr,
		"upstream", conn.Upstream,
	)
}

func (h *LoggerHook) OnDisconnect(ctx context.Context, conn tap.ConnInfo, err error) {
	if h.level&LogLevelConnection == 0 {
		return
	}
	if err != nil {
		h.logger.Info("connection closed",
			"conn_id", conn.ID,
			"error", err.Error(),
		)
	} else {
		h.logger.Info("connection closed",
			"conn_id", conn.ID,
		)
	}
}

// PacketHook implementation

func (h *LoggerHook) OnPacket(ctx context.Context, conn tap.ConnInfo, dir tap.Direction, pkt packet.Packet, frame []byte) {
	if h.level&LogLevelPacket == 0 || !h.logger.Enabled(ctx, slog.LevelDebug) {
		return
	}
	attrs := []any{
		"conn_id", conn.ID,
		"direction", dir.String(),
		"packet_type", pkt.Type().String(),
		"size", len(frame),
	}
	h.logger.Debug("packet", append(attrs, packetAttrs(pkt)...)...)
}

// ErrorHook implementation

func (h *LoggerHook) OnDecodeError(ctx context.Context, conn tap.ConnInfo, dir tap.Direction, frame []byte, err error) {
	if h.level&LogLevelError == 0 {
		return
	}
	h.logger.Warn("decode failed",
		"conn_id", conn.ID,
		"direction", dir.String(),
		"kind", packet.Kind(err),
		"size", len(frame),
		"error", err.Error(),
	)
}

// packetAttrs returns the fields worth logging for each packet type.
func packetAttrs(pkt packet.Packet) []any {
	switch p := pkt.(type) {
	case *packet.Connect:
		return []any{
			"client_id", p.ClientID,
			"username", p.Username,
			"protocol", p.ProtocolLevel,
			"clean_session", p.CleanSession,
			"keep_alive", p.KeepAlive,
		}
	case *packet.Connack:
		return []any{"session_present", p.SessionPresent, "return_code", p.ReturnCode.String()}
	case *packet.Publish:
		attrs := []any{"topic", p.TopicName, "qos", p.QoS, "retain", p.Retain, "payload_size", len(p.Payload)}
		if p.QoS > 0 {
			attrs = append(attrs, "packet_id", p.PacketID)
		}
		return attrs
	case *packet.Subscribe:
		filters := make([]string, len(p.Subscriptions))
		for i, sub := range p.Subscriptions {
			filters[i] = sub.TopicFilter
		}
		return []any{"packet_id", p.PacketID, "filters", filters}
	case *packet.Suback:
		return []any{"packet_id", p.PacketID, "return_codes", len(p.ReturnCodes)}
	case *packet.Unsubscribe:
		return []any{"packet_id", p.PacketID, "filters", p.TopicFilters}
	case *packet.Puback:
		return []any{"packet_id", p.PacketID}
	case *packet.Pubrec:
		return []any{"packet_id", p.PacketID}
	case *packet.Pubrel:
		return []any{"packet_id", p.PacketID}
	case *packet.Pubcomp:
		return []any{"packet_id", p.PacketID}
	case *packet.Unsuback:
		return []any{"packet_id", p.PacketID}
	default:
		return nil
	}
}
