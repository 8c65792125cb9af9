package packet

// Header is the first byte of the fixed header: packet type in bits 7-4,
// flags in bits 3-0. For PUBLISH the flags are DUP (bit 3), QoS (bits 2-1)
// and RETAIN (bit 0).
// MQTT 3.1.1 Section 2.2
type Header byte

// NewHeader packs a packet type and its low four flag bits.
func NewHeader(t Type, flags byte) Header {
	return Header(byte(t)<<4 | flags&0x0F)
}

// NewPublishHeader packs a PUBLISH header from its flags.
func NewPublishHeader(dup bool, qos QoS, retain bool) Header {
	var flags byte
	if dup {
		flags |= PublishFlagDup
	}
	flags |= byte(qos&0x03) << 1
	if retain {
		flags |= PublishFlagRetain
	}
	return NewHeader(TypePublish, flags)
}

// headerFor returns the header with the flag pattern MQTT mandates for t.
// It is not meaningful for PUBLISH, whose flags carry data.
func headerFor(t Type) Header {
	return NewHeader(t, reservedFlags(t))
}

// Type returns the packet type.
func (h Header) Type() Type {
	return Type(h >> 4)
}

// Flags returns the low four bits.
func (h Header) Flags() byte {
	return byte(h) & 0x0F
}

// Dup returns the DUP flag.
func (h Header) Dup() bool {
	return h&PublishFlagDup != 0
}

// QoS returns the QoS bits. The value may be 3 on malformed input.
func (h Header) QoS() QoS {
	return QoS((h >> 1) & 0x03)
}

// Retain returns the RETAIN flag.
func (h Header) Retain() bool {
	return h&PublishFlagRetain != 0
}

// reservedFlags returns the mandated flag nibble for every type except PUBLISH.
func reservedFlags(t Type) byte {
	switch t {
	case TypePubrel, TypeSubscribe, TypeUnsubscribe:
		return 0x02
	default:
		return 0x00
	}
}

// Validate checks the packet type and the flag bits for that type.
// MQTT 3.1.1 Section 2.2.2
func (h Header) Validate() error {
	t := h.Type()
	if !t.Valid() {
		return ErrUnknownPacketType
	}
	if t == TypePublish {
		if !h.QoS().Valid() {
			return ErrInvalidQoS
		}
		return nil
	}
	if h.Flags() != reservedFlags(t) {
		return ErrInvalidFlags
	}
	return nil
}

// FixedHeader is a decoded fixed header.
type FixedHeader struct {
	Header          Header
	RemainingLength uint32
}

// Size returns the encoded size of the fixed header in bytes.
func (h FixedHeader) Size() int {
	return FixedHeaderSize(h.RemainingLength)
}

// DecodeFixedHeader decodes and validates the fixed header at the start of buf.
// Returns the header and the number of bytes it occupies.
func DecodeFixedHeader(buf []byte) (FixedHeader, int, error) {
	return decodeFixedHeader(buf, nil)
}

// DecodeFixedHeader is like the package-level DecodeFixedHeader but honours
// AllowNonMinimalLength.
func (o DecodeOptions) DecodeFixedHeader(buf []byte) (FixedHeader, int, error) {
	return decodeFixedHeader(buf, &o)
}

func decodeFixedHeader(buf []byte, opts *DecodeOptions) (FixedHeader, int, error) {
	if len(buf) < 1 {
		return FixedHeader{}, 0, ErrTruncated
	}
	h := Header(buf[0])
	if err := h.Validate(); err != nil {
		return FixedHeader{}, 0, err
	}

	allowNonMinimal := opts != nil && opts.AllowNonMinimalLength
	length, n, err := decodeVarInt(buf[1:], allowNonMinimal)
	if err != nil {
		return FixedHeader{}, 0, err
	}
	return FixedHeader{Header: h, RemainingLength: length}, 1 + n, nil
}

// ConnectFlags is the CONNECT flags byte.
// MQTT 3.1.1 Section 3.1.2.3
type ConnectFlags byte

// Connect flag bits.
const (
	connectFlagReserved     = 1 << 0
	connectFlagCleanSession = 1 << 1
	connectFlagWill         = 1 << 2
	connectFlagWillQoSShift = 3
	connectFlagWillRetain   = 1 << 5
	connectFlagPassword     = 1 << 6
	connectFlagUsername     = 1 << 7
)

// Reserved returns bit 0, which must be zero.
func (f ConnectFlags) Reserved() bool { return f&connectFlagReserved != 0 }

// CleanSession returns bit 1.
func (f ConnectFlags) CleanSession() bool { return f&connectFlagCleanSession != 0 }

// Will returns bit 2.
func (f ConnectFlags) Will() bool { return f&connectFlagWill != 0 }

// WillQoS returns bits 4-3. The value may be 3 on malformed input.
func (f ConnectFlags) WillQoS() QoS { return QoS((f >> connectFlagWillQoSShift) & 0x03) }

// WillRetain returns bit 5.
func (f ConnectFlags) WillRetain() bool { return f&connectFlagWillRetain != 0 }

// Password returns bit 6.
func (f ConnectFlags) Password() bool { return f&connectFlagPassword != 0 }

// Username returns bit 7.
func (f ConnectFlags) Username() bool { return f&connectFlagUsername != 0 }
