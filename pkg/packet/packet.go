package packet

import (
	"fmt"

	"github.com/bromq-dev/mqttwire/pkg/topic"
)

// Packet is the interface implemented by all MQTT control packets.
type Packet interface {
	// Type returns the packet type.
	Type() Type

	// Encode encodes the complete packet, fixed header included, into buf.
	// Returns the number of bytes written.
	Encode(buf []byte) (int, error)

	// EncodedSize returns the total size of the encoded packet.
	EncodedSize() int
}

// DecodeOptions tunes how strictly input is checked. The zero value decodes
// strictly by MQTT 3.1.1 framing rules but treats strings as opaque bytes.
type DecodeOptions struct {
	// ValidateUTF8 rejects strings that are not well-formed UTF-8 or contain U+0000.
	ValidateUTF8 bool

	// ValidateTopics checks PUBLISH topic names and SUBSCRIBE/UNSUBSCRIBE
	// filters against the topic syntax rules.
	ValidateTopics bool

	// AllowNonMinimalLength accepts remaining lengths encoded with more bytes than needed.
	AllowNonMinimalLength bool

	// MaxPacketSize limits the total packet size, fixed header included.
	// Zero means MaxPacketSize.
	MaxPacketSize int
}

// Strict returns options with every optional check enabled.
func Strict() DecodeOptions {
	return DecodeOptions{ValidateUTF8: true, ValidateTopics: true}
}

// Decode decodes the first packet in buf using the default options.
// Returns the packet and the number of bytes it occupied; bytes after it are left alone.
func Decode(buf []byte) (Packet, int, error) {
	return DecodeOptions{}.Decode(buf)
}

// Decode decodes the first packet in buf.
// On error the returned packet is nil; no partially decoded packet is ever returned.
func (o DecodeOptions) Decode(buf []byte) (Packet, int, error) {
	fh, n, err := decodeFixedHeader(buf, &o)
	if err != nil {
		return nil, 0, decodeError(leadingType(buf), err)
	}

	total := n + int(fh.RemainingLength)
	if total > o.maxPacketSize() {
		return nil, 0, decodeError(fh.Header.Type(), ErrPacketTooLarge)
	}
	if len(buf) < total {
		return nil, 0, decodeError(fh.Header.Type(), ErrTruncated)
	}

	p, err := decodeBody(fh.Header, buf[n:total], &o)
	if err != nil {
		return nil, 0, decodeError(fh.Header.Type(), err)
	}
	return p, total, nil
}

func (o *DecodeOptions) maxPacketSize() int {
	if o.MaxPacketSize <= 0 {
		return MaxPacketSize
	}
	return o.MaxPacketSize
}

func leadingType(buf []byte) Type {
	if len(buf) == 0 {
		return TypeReserved0
	}
	return Header(buf[0]).Type()
}

// decodeBody decodes a packet body given its validated header.
// body must be exactly the remaining length bytes.
func decodeBody(h Header, body []byte, opts *DecodeOptions) (Packet, error) {
	c := &cursor{buf: body, opts: opts}

	switch h.Type() {
	case TypeConnect:
		return decodeConnect(c)
	case TypeConnack:
		return decodeConnack(c)
	case TypePublish:
		return decodePublish(h, c)
	case TypePuback:
		id, err := decodeAck(c)
		if err != nil {
			return nil, err
		}
		return &Puback{PacketID: id}, nil
	case TypePubrec:
		id, err := decodeAck(c)
		if err != nil {
			return nil, err
		}
		return &Pubrec{PacketID: id}, nil
	case TypePubrel:
		id, err := decodeAck(c)
		if err != nil {
			return nil, err
		}
		return &Pubrel{PacketID: id}, nil
	case TypePubcomp:
		id, err := decodeAck(c)
		if err != nil {
			return nil, err
		}
		return &Pubcomp{PacketID: id}, nil
	case TypeSubscribe:
		return decodeSubscribe(c)
	case TypeSuback:
		return decodeSuback(c)
	case TypeUnsubscribe:
		return decodeUnsubscribe(c)
	case TypeUnsuback:
		id, err := decodeAck(c)
		if err != nil {
			return nil, err
		}
		return &Unsuback{PacketID: id}, nil
	case TypePingreq:
		if err := c.done(); err != nil {
			return nil, err
		}
		return &Pingreq{}, nil
	case TypePingresp:
		if err := c.done(); err != nil {
			return nil, err
		}
		return &Pingresp{}, nil
	case TypeDisconnect:
		if err := c.done(); err != nil {
			return nil, err
		}
		return &Disconnect{}, nil
	default:
		return nil, ErrUnknownPacketType
	}
}

// Encode encodes p into a newly allocated buffer of exactly its encoded size.
func Encode(p Packet) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("packet: encode nil packet: %w", ErrInvalidArgument)
	}
	buf := make([]byte, p.EncodedSize())
	n, err := p.Encode(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// New returns a zero value of the packet type t, or nil for reserved types.
func New(t Type) Packet {
	switch t {
	case TypeConnect:
		return &Connect{}
	case TypeConnack:
		return &Connack{}
	case TypePublish:
		return &Publish{}
	case TypePuback:
		return &Puback{}
	case TypePubrec:
		return &Pubrec{}
	case TypePubrel:
		return &Pubrel{}
	case TypePubcomp:
		return &Pubcomp{}
	case TypeSubscribe:
		return &Subscribe{}
	case TypeSuback:
		return &Suback{}
	case TypeUnsubscribe:
		return &Unsubscribe{}
	case TypeUnsuback:
		return &Unsuback{}
	case TypePingreq:
		return &Pingreq{}
	case TypePingresp:
		return &Pingresp{}
	case TypeDisconnect:
		return &Disconnect{}
	default:
		return nil
	}
}

// encodePacket writes the fixed header followed by a body of bodyLen bytes produced by write.
func encodePacket(buf []byte, h Header, bodyLen int, write func(body []byte)) (int, error) {
	if bodyLen > MaxRemainingLength {
		return 0, invalidArg(h.Type(), "body of %d bytes exceeds the maximum remaining length", bodyLen)
	}
	total := FixedHeaderSize(uint32(bodyLen)) + bodyLen
	if len(buf) < total {
		return 0, ErrShortBuffer
	}

	pos, err := encodeFixedHeader(buf, h, uint32(bodyLen))
	if err != nil {
		return 0, err
	}
	write(buf[pos:total])
	return total, nil
}

// packetSize returns the total size of a packet with a body of bodyLen bytes.
func packetSize(bodyLen int) int {
	return FixedHeaderSize(uint32(bodyLen)) + bodyLen
}

func checkString(t Type, field, s string) error {
	if len(s) > maxStringLength {
		return invalidArg(t, "%s is %d bytes, longer than %d", field, len(s), maxStringLength)
	}
	return nil
}

func checkBytes(t Type, field string, b []byte) error {
	if len(b) > maxStringLength {
		return invalidArg(t, "%s is %d bytes, longer than %d", field, len(b), maxStringLength)
	}
	return nil
}

func checkPacketID(t Type, id uint16) error {
	if id == 0 {
		return invalidArg(t, "packet identifier must be non-zero")
	}
	return nil
}

func validateTopicName(opts *DecodeOptions, name string) error {
	if opts == nil || !opts.ValidateTopics {
		return nil
	}
	if err := topic.ValidateName(name); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTopic, err)
	}
	return nil
}

func validateTopicFilter(opts *DecodeOptions, filter string) error {
	if opts == nil || !opts.ValidateTopics {
		return nil
	}
	if err := topic.ValidateFilter(filter); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTopic, err)
	}
	return nil
}
