package packet

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"
)

// maxStringLength is the largest length a 2-byte prefix can express.
const maxStringLength = 65535

// EncodeVarInt encodes a remaining length into buf and returns the number of bytes written.
// The encoding is always minimal: 1 to 4 bytes, a single zero byte for 0.
// MQTT 3.1.1 Section 2.2.3
func EncodeVarInt(buf []byte, value uint32) (int, error) {
	if value > MaxRemainingLength {
		return 0, fmt.Errorf("packet: remaining length %d: %w", value, ErrInvalidArgument)
	}

	i := 0
	for {
		if i >= len(buf) {
			return 0, ErrShortBuffer
		}
		encodedByte := byte(value & 0x7F)
		value >>= 7
		if value > 0 {
			encodedByte |= 0x80
		}
		buf[i] = encodedByte
		i++
		if value == 0 {
			break
		}
	}
	return i, nil
}

// AppendVarInt appends the minimal encoding of value to dst.
func AppendVarInt(dst []byte, value uint32) ([]byte, error) {
	var tmp [4]byte
	n, err := EncodeVarInt(tmp[:], value)
	if err != nil {
		return dst, err
	}
	return append(dst, tmp[:n]...), nil
}

// DecodeVarInt decodes a remaining length from buf.
// Returns the value and the number of bytes consumed. Non-minimal encodings are rejected.
// MQTT 3.1.1 Section 2.2.3
func DecodeVarInt(buf []byte) (value uint32, n int, err error) {
	return decodeVarInt(buf, false)
}

func decodeVarInt(buf []byte, allowNonMinimal bool) (uint32, int, error) {
	var value uint32
	var multiplier uint32 = 1

	for i := 0; i < 4; i++ {
		if i >= len(buf) {
			return 0, 0, ErrTruncated
		}
		encodedByte := buf[i]
		value += uint32(encodedByte&0x7F) * multiplier

		if encodedByte&0x80 == 0 {
			// A multi-byte encoding ending in a zero group could have been shorter.
			if i > 0 && encodedByte == 0 && !allowNonMinimal {
				return 0, 0, ErrMalformedLength
			}
			return value, i + 1, nil
		}
		multiplier *= 128
	}

	// Fourth byte still had the continuation bit set.
	return 0, 0, ErrMalformedLength
}

// VarIntSize returns the number of bytes needed to encode a value as a variable byte integer.
func VarIntSize(value uint32) int {
	switch {
	case value < 128:
		return 1
	case value < 16384:
		return 2
	case value < 2097152:
		return 3
	default:
		return 4
	}
}

// EncodeUint16 encodes a 16-bit unsigned integer in big-endian order.
// Returns 2 on success, 0 if buffer is too small.
func EncodeUint16(buf []byte, value uint16) int {
	if len(buf) < 2 {
		return 0
	}
	binary.BigEndian.PutUint16(buf, value)
	return 2
}

// DecodeUint16 decodes a 16-bit unsigned integer from big-endian bytes.
// Returns the value, 2 bytes consumed, and success flag.
func DecodeUint16(buf []byte) (value uint16, n int, ok bool) {
	if len(buf) < 2 {
		return 0, 0, false
	}
	return binary.BigEndian.Uint16(buf), 2, true
}

// EncodeString encodes a UTF-8 string with a 2-byte length prefix.
// Returns the number of bytes written, or 0 on error.
// MQTT 3.1.1 Section 1.5.3
func EncodeString(buf []byte, s string) int {
	slen := len(s)
	if slen > maxStringLength {
		return 0
	}
	if len(buf) < 2+slen {
		return 0
	}
	binary.BigEndian.PutUint16(buf, uint16(slen))
	copy(buf[2:], s)
	return 2 + slen
}

// EncodeBytes encodes binary data with a 2-byte length prefix.
// Returns the number of bytes written, or 0 on error.
func EncodeBytes(buf []byte, data []byte) int {
	dlen := len(data)
	if dlen > maxStringLength {
		return 0
	}
	if len(buf) < 2+dlen {
		return 0
	}
	binary.BigEndian.PutUint16(buf, uint16(dlen))
	copy(buf[2:], data)
	return 2 + dlen
}

// DecodeString decodes a length-prefixed field from buf.
// Returns a slice referencing the original buffer (zero-copy), bytes consumed, and success flag.
// The caller should copy the data if needed beyond the buffer's lifetime.
func DecodeString(buf []byte) (s []byte, n int, ok bool) {
	if len(buf) < 2 {
		return nil, 0, false
	}
	slen := int(binary.BigEndian.Uint16(buf))
	if len(buf) < 2+slen {
		return nil, 0, false
	}
	return buf[2 : 2+slen], 2 + slen, true
}

// ValidateUTF8String validates that a byte slice is well-formed UTF-8 without null characters.
// MQTT 3.1.1 Section 1.5.3
func ValidateUTF8String(data []byte) error {
	if !utf8.Valid(data) {
		return ErrInvalidUTF8
	}
	for _, c := range data {
		if c == 0 {
			return ErrInvalidUTF8
		}
	}
	return nil
}

// FixedHeaderSize calculates the size of the fixed header for a given remaining length.
func FixedHeaderSize(remainingLength uint32) int {
	return 1 + VarIntSize(remainingLength)
}

// encodeFixedHeader writes the header byte and remaining length into buf.
func encodeFixedHeader(buf []byte, h Header, remainingLength uint32) (int, error) {
	if len(buf) < 1 {
		return 0, ErrShortBuffer
	}
	buf[0] = byte(h)
	n, err := EncodeVarInt(buf[1:], remainingLength)
	if err != nil {
		return 0, err
	}
	return 1 + n, nil
}

// cursor reads the fields of one packet body. Every read is bounds checked
// against the body slice, so a short body yields ErrTruncated, never a panic.
type cursor struct {
	buf  []byte
	pos  int
	opts *DecodeOptions
}

func (c *cursor) remaining() int {
	return len(c.buf) - c.pos
}

func (c *cursor) readByte() (byte, error) {
	if c.pos >= len(c.buf) {
		return 0, ErrTruncated
	}
	b := c.buf[c.pos]
	c.pos++
	return b, nil
}

func (c *cursor) readUint16() (uint16, error) {
	v, n, ok := DecodeUint16(c.buf[c.pos:])
	if !ok {
		return 0, ErrTruncated
	}
	c.pos += n
	return v, nil
}

// readPacketID reads a packet identifier, which must be non-zero.
func (c *cursor) readPacketID() (uint16, error) {
	id, err := c.readUint16()
	if err != nil {
		return 0, err
	}
	if id == 0 {
		return 0, ErrInvalidPacketID
	}
	return id, nil
}

// readBinary reads a length-prefixed field and returns a copy of it, nil when empty.
func (c *cursor) readBinary() ([]byte, error) {
	data, n, ok := DecodeString(c.buf[c.pos:])
	if !ok {
		return nil, ErrTruncated
	}
	c.pos += n
	if len(data) == 0 {
		return nil, nil
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// readString reads a length-prefixed UTF-8 string, validating it when asked to.
func (c *cursor) readString() (string, error) {
	data, n, ok := DecodeString(c.buf[c.pos:])
	if !ok {
		return "", ErrTruncated
	}
	if c.opts != nil && c.opts.ValidateUTF8 {
		if err := ValidateUTF8String(data); err != nil {
			return "", err
		}
	}
	c.pos += n
	return string(data), nil
}

// rest returns a copy of every unread byte, or nil if there are none.
func (c *cursor) rest() []byte {
	if c.pos >= len(c.buf) {
		return nil
	}
	out := make([]byte, len(c.buf)-c.pos)
	copy(out, c.buf[c.pos:])
	c.pos = len(c.buf)
	return out
}

// done reports ErrTrailingBytes if the body was not fully consumed.
func (c *cursor) done() error {
	if c.pos != len(c.buf) {
		return ErrTrailingBytes
	}
	return nil
}
