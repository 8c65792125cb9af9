package tap

import (
	"context"
	"time"

	"github.com/bromq-dev/mqttwire/pkg/packet"
)

// Direction tells which side of a connection a frame came from.
type Direction uint8

const (
	// Inbound frames were sent by the accepted client.
	Inbound Direction = iota + 1
	// Outbound frames were sent by the upstream server towards the client.
	Outbound
)

func (d Direction) String() string {
	switch d {
	case Inbound:
		return "inbound"
	case Outbound:
		return "outbound"
	default:
		return "unknown"
	}
}

// ConnInfo describes one tapped connection.
type ConnInfo struct {
	// ID is a random identifier assigned when the connection is accepted.
	ID string

	// RemoteAddr is the client's address.
	RemoteAddr string

	// Upstream is the relayed server address, empty when not relaying.
	Upstream string

	// ConnectedAt is when the connection was accepted.
	ConnectedAt time.Time
}

// Hook observes tapped traffic. Implementations add any of the event
// interfaces below; Hooks.Register detects them.
//
// Hook methods are called synchronously on the connection's read goroutine.
type Hook interface {
	// ID returns a unique identifier for this hook.
	ID() string
}

// ConnectionHook handles connection lifecycle events.
type ConnectionHook interface {
	Hook

	// OnConnect is called when a connection is accepted, before any frame is read.
	OnConnect(ctx context.Context, conn ConnInfo)

	// OnDisconnect is called once the connection is finished.
	// err is nil for a clean end of stream.
	OnDisconnect(ctx context.Context, conn ConnInfo, err error)
}

// PacketHook receives every successfully decoded packet.
type PacketHook interface {
	Hook

	// OnPacket is called for each decoded packet. frame holds its raw encoding
	// and is only valid for the duration of the call.
	OnPacket(ctx context.Context, conn ConnInfo, dir Direction, pkt packet.Packet, frame []byte)
}

// ErrorHook receives decode failures. The connection is closed afterwards.
type ErrorHook interface {
	Hook

	// OnDecodeError is called with the *packet.DecodeError that ended the
	// stream. frame is the offending raw frame, or nil if the fixed header
	// itself was invalid.
	OnDecodeError(ctx context.Context, conn ConnInfo, dir Direction, frame []byte, err error)
}
