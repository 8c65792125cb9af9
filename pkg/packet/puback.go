package packet

// The acknowledgement packets below share one wire shape: a fixed header and
// a 2-byte packet identifier, remaining length always 2.

const ackSize = 4

// encodeAck encodes a packet identifier-only packet of type t.
func encodeAck(buf []byte, t Type, packetID uint16) (int, error) {
	if err := checkPacketID(t, packetID); err != nil {
		return 0, err
	}
	return encodePacket(buf, headerFor(t), 2, func(b []byte) {
		EncodeUint16(b, packetID)
	})
}

// decodeAck decodes a body that holds only a packet identifier.
func decodeAck(cur *cursor) (uint16, error) {
	id, err := cur.readPacketID()
	if err != nil {
		return 0, err
	}
	if err := cur.done(); err != nil {
		return 0, err
	}
	return id, nil
}

// Puback represents an MQTT PUBACK packet (QoS 1 acknowledgment).
// MQTT 3.1.1 Section 3.4
type Puback struct {
	PacketID uint16
}

// Type returns TypePuback.
func (p *Puback) Type() Type { return TypePuback }

// EncodedSize returns the total size of the encoded PUBACK packet.
func (p *Puback) EncodedSize() int { return ackSize }

// Encode encodes the PUBACK packet into buf.
func (p *Puback) Encode(buf []byte) (int, error) {
	return encodeAck(buf, TypePuback, p.PacketID)
}

// NewPuback creates a new PUBACK packet.
func NewPuback(packetID uint16) *Puback {
	return &Puback{PacketID: packetID}
}

// Pubrec represents an MQTT PUBREC packet (QoS 2 step 1).
// MQTT 3.1.1 Section 3.5
type Pubrec struct {
	PacketID uint16
}

// Type returns TypePubrec.
func (p *Pubrec) Type() Type { return TypePubrec }

// EncodedSize returns the total size of the encoded PUBREC packet.
func (p *Pubrec) EncodedSize() int { return ackSize }

// Encode encodes the PUBREC packet into buf.
func (p *Pubrec) Encode(buf []byte) (int, error) {
	return encodeAck(buf, TypePubrec, p.PacketID)
}

// NewPubrec creates a new PUBREC packet.
func NewPubrec(packetID uint16) *Pubrec {
	return &Pubrec{PacketID: packetID}
}

// Pubrel represents an MQTT PUBREL packet (QoS 2 step 2).
// Its fixed header flags are always 0010.
// MQTT 3.1.1 Section 3.6
type Pubrel struct {
	PacketID uint16
}

// Type returns TypePubrel.
func (p *Pubrel) Type() Type { return TypePubrel }

// EncodedSize returns the total size of the encoded PUBREL packet.
func (p *Pubrel) EncodedSize() int { return ackSize }

// Encode encodes the PUBREL packet into buf.
func (p *Pubrel) Encode(buf []byte) (int, error) {
	return encodeAck(buf, TypePubrel, p.PacketID)
}

// NewPubrel creates a new PUBREL packet.
func NewPubrel(packetID uint16) *Pubrel {
	return &Pubrel{PacketID: packetID}
}

// Pubcomp represents an MQTT PUBCOMP packet (QoS 2 step 3).
// MQTT 3.1.1 Section 3.7
type Pubcomp struct {
	PacketID uint16
}

// Type returns TypePubcomp.
func (p *Pubcomp) Type() Type { return TypePubcomp }

// EncodedSize returns the total size of the encoded PUBCOMP packet.
func (p *Pubcomp) EncodedSize() int { return ackSize }

// Encode encodes the PUBCOMP packet into buf.
func (p *Pubcomp) Encode(buf []byte) (int, error) {
	return encodeAck(buf, TypePubcomp, p.PacketID)
}

// NewPubcomp creates a new PUBCOMP packet.
func NewPubcomp(packetID uint16) *Pubcomp {
	return &Pubcomp{PacketID: packetID}
}

// Unsuback represents an MQTT UNSUBACK packet.
// MQTT 3.1.1 Section 3.11
type Unsuback struct {
	PacketID uint16
}

// Type returns TypeUnsuback.
func (u *Unsuback) Type() Type { return TypeUnsuback }

// EncodedSize returns the total size of the encoded UNSUBACK packet.
func (u *Unsuback) EncodedSize() int { return ackSize }

// Encode encodes the UNSUBACK packet into buf.
func (u *Unsuback) Encode(buf []byte) (int, error) {
	return encodeAck(buf, TypeUnsuback, u.PacketID)
}

// NewUnsuback creates a new UNSUBACK packet.
func NewUnsuback(packetID uint16) *Unsuback {
	return &Unsuback{PacketID: packetID}
}
