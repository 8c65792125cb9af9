package packet

import (
	"errors"
	"fmt"
)

// Sentinel errors for packet parsing and encoding.
var (
	// ErrTruncated indicates there are not enough bytes to complete a field
	// or the body declared by the remaining length.
	ErrTruncated = errors.New("truncated packet")

	// ErrMalformedLength indicates the remaining length encoding is invalid:
	// more than four bytes, or not the minimal encoding.
	ErrMalformedLength = errors.New("malformed remaining length")

	// ErrUnknownPacketType indicates a reserved packet type (0 or 15).
	ErrUnknownPacketType = errors.New("unknown packet type")

	// ErrInvalidFlags indicates reserved flag bits were violated.
	ErrInvalidFlags = errors.New("invalid packet flags")

	// ErrInvalidQoS indicates an invalid QoS level.
	ErrInvalidQoS = errors.New("invalid QoS level")

	// ErrTrailingBytes indicates the body is longer than its fields account for.
	ErrTrailingBytes = errors.New("trailing bytes after packet body")

	// ErrInvalidArgument indicates a packet value that cannot be encoded.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrMalformedPacket indicates the packet structure is invalid.
	ErrMalformedPacket = errors.New("malformed packet")

	// ErrInvalidProtocolName indicates an unrecognized protocol name.
	ErrInvalidProtocolName = errors.New("invalid protocol name")

	// ErrInvalidProtocolVersion indicates an unsupported protocol level.
	ErrInvalidProtocolVersion = errors.New("invalid protocol version")

	// ErrInvalidPacketID indicates a zero packet identifier where one is required.
	ErrInvalidPacketID = errors.New("invalid packet identifier")

	// ErrInvalidReturnCode indicates a reserved CONNACK or SUBACK return code.
	ErrInvalidReturnCode = errors.New("invalid return code")

	// ErrInvalidUTF8 indicates a string contains invalid UTF-8 or U+0000.
	ErrInvalidUTF8 = errors.New("invalid UTF-8 string")

	// ErrInvalidTopic indicates an invalid topic name or filter.
	ErrInvalidTopic = errors.New("invalid topic")

	// ErrPacketTooLarge indicates the packet exceeds the maximum allowed size.
	ErrPacketTooLarge = errors.New("packet too large")

	// ErrShortBuffer indicates insufficient buffer space for encoding.
	ErrShortBuffer = errors.New("buffer too short")
)

// DecodeError records which packet type failed to decode and why.
type DecodeError struct {
	Type Type
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("packet: decode %s: %v", e.Type, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func decodeError(t Type, err error) error {
	return &DecodeError{Type: t, Err: err}
}

// invalidArg wraps ErrInvalidArgument with a reason.
func invalidArg(t Type, format string, args ...any) error {
	return fmt.Errorf("packet: encode %s: %w: %s", t, ErrInvalidArgument, fmt.Sprintf(format, args...))
}

var kinds = []struct {
	err  error
	name string
}{
	{ErrTruncated, "truncated"},
	{ErrMalformedLength, "malformed_length"},
	{ErrUnknownPacketType, "unknown_packet_type"},
	{ErrInvalidFlags, "invalid_flags"},
	{ErrInvalidQoS, "invalid_qos"},
	{ErrTrailingBytes, "trailing_bytes"},
	{ErrInvalidArgument, "invalid_argument"},
	{ErrMalformedPacket, "malformed_packet"},
	{ErrInvalidProtocolName, "invalid_protocol_name"},
	{ErrInvalidProtocolVersion, "invalid_protocol_version"},
	{ErrInvalidPacketID, "invalid_packet_id"},
	{ErrInvalidReturnCode, "invalid_return_code"},
	{ErrInvalidUTF8, "invalid_utf8"},
	{ErrInvalidTopic, "invalid_topic"},
	{ErrPacketTooLarge, "packet_too_large"},
	{ErrShortBuffer, "short_buffer"},
}

// Kind returns a short stable label for a codec error, suitable for metrics.
// Errors that did not come from this package return "other"; nil returns "".
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "other"
}
