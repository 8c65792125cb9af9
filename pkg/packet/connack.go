package packet

// Connack represents an MQTT CONNACK packet.
// MQTT 3.1.1 Section 3.2
type Connack struct {
	// Session present flag (bit 0 of the acknowledge flags)
	SessionPresent bool

	ReturnCode ConnackReturnCode
}

// Type returns TypeConnack.
func (c *Connack) Type() Type {
	return TypeConnack
}

// EncodedSize returns the total size of the encoded CONNACK packet.
func (c *Connack) EncodedSize() int {
	return 4
}

// Encode encodes the CONNACK packet into buf.
func (c *Connack) Encode(buf []byte) (int, error) {
	if !c.ReturnCode.Valid() {
		return 0, invalidArg(TypeConnack, "reserved return code %d", c.ReturnCode)
	}
	// MQTT-3.2.2-4
	if c.SessionPresent && !c.ReturnCode.IsAccepted() {
		return 0, invalidArg(TypeConnack, "session present with refusal %q", c.ReturnCode)
	}

	return encodePacket(buf, headerFor(TypeConnack), 2, func(b []byte) {
		b[0] = 0
		if c.SessionPresent {
			b[0] = 0x01
		}
		b[1] = byte(c.ReturnCode)
	})
}

// decodeConnack decodes a CONNACK body.
func decodeConnack(cur *cursor) (*Connack, error) {
	ackFlags, err := cur.readByte()
	if err != nil {
		return nil, err
	}
	// Bits 7-1 are reserved
	if ackFlags&0xFE != 0 {
		return nil, ErrInvalidFlags
	}

	code, err := cur.readByte()
	if err != nil {
		return nil, err
	}
	if err := cur.done(); err != nil {
		return nil, err
	}

	c := &Connack{
		SessionPresent: ackFlags&0x01 != 0,
		ReturnCode:     ConnackReturnCode(code),
	}
	if !c.ReturnCode.Valid() {
		return nil, ErrInvalidReturnCode
	}
	if c.SessionPresent && !c.ReturnCode.IsAccepted() {
		return nil, ErrMalformedPacket
	}
	return c, nil
}

// NewConnack creates a new CONNACK packet.
func NewConnack(sessionPresent bool, code ConnackReturnCode) *Connack {
	return &Connack{
		SessionPresent: sessionPresent,
		ReturnCode:     code,
	}
}
