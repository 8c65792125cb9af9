package packet

// Unsubscribe represents an MQTT UNSUBSCRIBE packet.
// Its fixed header flags are always 0010.
// MQTT 3.1.1 Section 3.10
type Unsubscribe struct {
	PacketID     uint16
	TopicFilters []string
}

// Type returns TypeUnsubscribe.
func (u *Unsubscribe) Type() Type {
	return TypeUnsubscribe
}

func (u *Unsubscribe) bodySize() int {
	size := 2 // Packet ID
	for _, filter := range u.TopicFilters {
		size += 2 + len(filter)
	}
	return size
}

// EncodedSize returns the total size of the encoded UNSUBSCRIBE packet.
func (u *Unsubscribe) EncodedSize() int {
	return packetSize(u.bodySize())
}

func (u *Unsubscribe) validate() error {
	if err := checkPacketID(TypeUnsubscribe, u.PacketID); err != nil {
		return err
	}
	// MQTT-3.10.3-2
	if len(u.TopicFilters) == 0 {
		return invalidArg(TypeUnsubscribe, "no topic filters")
	}
	for i, filter := range u.TopicFilters {
		if filter == "" {
			return invalidArg(TypeUnsubscribe, "topic filter %d is empty", i)
		}
		if err := checkString(TypeUnsubscribe, "topic filter", filter); err != nil {
			return err
		}
	}
	return nil
}

// Encode encodes the UNSUBSCRIBE packet into buf.
func (u *Unsubscribe) Encode(buf []byte) (int, error) {
	if err := u.validate(); err != nil {
		return 0, err
	}

	return encodePacket(buf, headerFor(TypeUnsubscribe), u.bodySize(), func(b []byte) {
		pos := EncodeUint16(b, u.PacketID)
		for _, filter := range u.TopicFilters {
			pos += EncodeString(b[pos:], filter)
		}
	})
}

// decodeUnsubscribe decodes an UNSUBSCRIBE body, reading filters until the body is exhausted.
func decodeUnsubscribe(cur *cursor) (*Unsubscribe, error) {
	id, err := cur.readPacketID()
	if err != nil {
		return nil, err
	}
	u := &Unsubscribe{PacketID: id}

	for cur.remaining() > 0 {
		filter, err := cur.readString()
		if err != nil {
			return nil, err
		}
		if filter == "" {
			return nil, ErrMalformedPacket
		}
		if err := validateTopicFilter(cur.opts, filter); err != nil {
			return nil, err
		}
		u.TopicFilters = append(u.TopicFilters, filter)
	}

	if len(u.TopicFilters) == 0 {
		return nil, ErrMalformedPacket
	}
	return u, nil
}

// NewUnsubscribe creates a new UNSUBSCRIBE packet.
func NewUnsubscribe(packetID uint16, filters ...string) *Unsubscribe {
	return &Unsubscribe{
		PacketID:     packetID,
		TopicFilters: filters,
	}
}
