package packet

// encodeEmpty encodes a packet that is a fixed header with remaining length 0.
func encodeEmpty(buf []byte, t Type) (int, error) {
	if len(buf) < 2 {
		return 0, ErrShortBuffer
	}
	buf[0] = byte(headerFor(t))
	buf[1] = 0 // Remaining length
	return 2, nil
}

// Pingreq represents an MQTT PINGREQ packet.
// MQTT 3.1.1 Section 3.12
type Pingreq struct{}

// Type returns TypePingreq.
func (p *Pingreq) Type() Type {
	return TypePingreq
}

// EncodedSize returns the total size of the encoded PINGREQ packet.
func (p *Pingreq) EncodedSize() int {
	return 2 // Fixed header only, remaining length = 0
}

// Encode encodes the PINGREQ packet into buf.
func (p *Pingreq) Encode(buf []byte) (int, error) {
	return encodeEmpty(buf, TypePingreq)
}

// Pingresp represents an MQTT PINGRESP packet.
// MQTT 3.1.1 Section 3.13
type Pingresp struct{}

// Type returns TypePingresp.
func (p *Pingresp) Type() Type {
	return TypePingresp
}

// EncodedSize returns the total size of the encoded PINGRESP packet.
func (p *Pingresp) EncodedSize() int {
	return 2 // Fixed header only, remaining length = 0
}

// Encode encodes the PINGRESP packet into buf.
func (p *Pingresp) Encode(buf []byte) (int, error) {
	return encodeEmpty(buf, TypePingresp)
}
