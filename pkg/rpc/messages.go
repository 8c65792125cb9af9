package rpc

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/bromq-dev/mqttwire/pkg/packet"
)

// Envelope carries one packet of any type. Body is the msgpack encoding of
// the packet struct named by Type (for example "PUBLISH" and *packet.Publish).
type Envelope struct {
	Type string             `msgpack:"type"`
	Body msgpack.RawMessage `msgpack:"body,omitempty"`
}

// Wrap puts p in an envelope.
func Wrap(p packet.Packet) (Envelope, error) {
	if p == nil {
		return Envelope{}, fmt.Errorf("rpc: wrap nil packet: %w", packet.ErrInvalidArgument)
	}
	body, err := msgpack.Marshal(p)
	if err != nil {
		return Envelope{}, fmt.Errorf("rpc: marshal %s: %w", p.Type(), err)
	}
	return Envelope{Type: p.Type().String(), Body: body}, nil
}

// Packet unwraps the envelope into a packet value.
func (e Envelope) Packet() (packet.Packet, error) {
	t, ok := packet.ParseType(e.Type)
	if !ok {
		return nil, fmt.Errorf("rpc: packet type %q: %w", e.Type, packet.ErrUnknownPacketType)
	}
	p := packet.New(t)
	if len(e.Body) == 0 {
		return p, nil
	}
	if err := msgpack.Unmarshal(e.Body, p); err != nil {
		return nil, fmt.Errorf("rpc: unmarshal %s: %w: %v", e.Type, packet.ErrInvalidArgument, err)
	}
	return p, nil
}

// DecodeRequest asks the service to decode a byte stream.
type DecodeRequest struct {
	// Frames holds zero or more packets back to back.
	Frames []byte `msgpack:"frames"`

	// Options controls validation; see packet.DecodeOptions.
	Options packet.DecodeOptions `msgpack:"options"`

	// Limit stops after this many packets. Zero means no limit.
	Limit int `msgpack:"limit,omitempty"`
}

// DecodeResponse lists the decoded packets in stream order.
type DecodeResponse struct {
	Packets []Envelope `msgpack:"packets"`

	// Consumed is the number of bytes the packets occupied. Bytes after it
	// are an incomplete packet (or unread because of Limit) and can be resent
	// with more data.
	Consumed int `msgpack:"consumed"`
}

// EncodeRequest asks the service to encode one packet.
type EncodeRequest struct {
	Packet Envelope `msgpack:"packet"`
}

// EncodeResponse holds the encoded packet.
type EncodeResponse struct {
	Frame []byte `msgpack:"frame"`
}
