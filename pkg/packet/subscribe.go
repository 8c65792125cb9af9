package packet

// Subscription represents a single topic subscription.
type Subscription struct {
	TopicFilter string
	QoS         QoS // Requested QoS
}

// Subscribe represents an MQTT SUBSCRIBE packet.
// Its fixed header flags are always 0010.
// MQTT 3.1.1 Section 3.8
type Subscribe struct {
	PacketID      uint16
	Subscriptions []Subscription
}

// Type returns TypeSubscribe.
func (s *Subscribe) Type() Type {
	return TypeSubscribe
}

func (s *Subscribe) bodySize() int {
	size := 2 // Packet ID
	for _, sub := range s.Subscriptions {
		size += 2 + len(sub.TopicFilter) + 1 // length + filter + requested QoS byte
	}
	return size
}

// EncodedSize returns the total size of the encoded SUBSCRIBE packet.
func (s *Subscribe) EncodedSize() int {
	return packetSize(s.bodySize())
}

func (s *Subscribe) validate() error {
	if err := checkPacketID(TypeSubscribe, s.PacketID); err != nil {
		return err
	}
	// MQTT-3.8.3-3
	if len(s.Subscriptions) == 0 {
		return invalidArg(TypeSubscribe, "no subscriptions")
	}
	for i, sub := range s.Subscriptions {
		if sub.TopicFilter == "" {
			return invalidArg(TypeSubscribe, "subscription %d has an empty topic filter", i)
		}
		if err := checkString(TypeSubscribe, "topic filter", sub.TopicFilter); err != nil {
			return err
		}
		if !sub.QoS.Valid() {
			return invalidArg(TypeSubscribe, "subscription %d requests QoS %d", i, sub.QoS)
		}
	}
	return nil
}

// Encode encodes the SUBSCRIBE packet into buf.
func (s *Subscribe) Encode(buf []byte) (int, error) {
	if err := s.validate(); err != nil {
		return 0, err
	}

	return encodePacket(buf, headerFor(TypeSubscribe), s.bodySize(), func(b []byte) {
		pos := EncodeUint16(b, s.PacketID)
		for _, sub := range s.Subscriptions {
			pos += EncodeString(b[pos:], sub.TopicFilter)
			b[pos] = byte(sub.QoS)
			pos++
		}
	})
}

// decodeSubscribe decodes a SUBSCRIBE body. There is no count field: tuples
// are read until the body is exhausted.
func decodeSubscribe(cur *cursor) (*Subscribe, error) {
	id, err := cur.readPacketID()
	if err != nil {
		return nil, err
	}
	s := &Subscribe{PacketID: id}

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

		options, err := cur.readByte()
		if err != nil {
			return nil, err
		}
		// Bits 7-2 are reserved
		if options&0xFC != 0 {
			return nil, ErrInvalidFlags
		}
		qos := QoS(options & 0x03)
		if !qos.Valid() {
			return nil, ErrInvalidQoS
		}

		s.Subscriptions = append(s.Subscriptions, Subscription{TopicFilter: filter, QoS: qos})
	}

	if len(s.Subscriptions) == 0 {
		return nil, ErrMalformedPacket
	}
	return s, nil
}

// NewSubscribe creates a new SUBSCRIBE packet.
func NewSubscribe(packetID uint16, subs ...Subscription) *Subscribe {
	return &Subscribe{
		PacketID:      packetID,
		Subscriptions: subs,
	}
}

// Suback represents an MQTT SUBACK packet.
// ReturnCodes are in the same order as the subscriptions of the SUBSCRIBE being acknowledged.
// MQTT 3.1.1 Section 3.9
type Suback struct {
	PacketID    uint16
	ReturnCodes []SubackReturnCode
}

// Type returns TypeSuback.
func (s *Suback) Type() Type {
	return TypeSuback
}

// EncodedSize returns the total size of the encoded SUBACK packet.
func (s *Suback) EncodedSize() int {
	return packetSize(2 + len(s.ReturnCodes))
}

func (s *Suback) validate() error {
	if err := checkPacketID(TypeSuback, s.PacketID); err != nil {
		return err
	}
	if len(s.ReturnCodes) == 0 {
		return invalidArg(TypeSuback, "no return codes")
	}
	for i, code := range s.ReturnCodes {
		if !code.Valid() {
			return invalidArg(TypeSuback, "return code %d is 0x%02x", i, byte(code))
		}
	}
	return nil
}

// Encode encodes the SUBACK packet into buf.
func (s *Suback) Encode(buf []byte) (int, error) {
	if err := s.validate(); err != nil {
		return 0, err
	}

	return encodePacket(buf, headerFor(TypeSuback), 2+len(s.ReturnCodes), func(b []byte) {
		pos := EncodeUint16(b, s.PacketID)
		for _, code := range s.ReturnCodes {
			b[pos] = byte(code)
			pos++
		}
	})
}

// decodeSuback decodes a SUBACK body: one return code per remaining byte.
func decodeSuback(cur *cursor) (*Suback, error) {
	id, err := cur.readPacketID()
	if err != nil {
		return nil, err
	}
	s := &Suback{PacketID: id}

	if cur.remaining() == 0 {
		return nil, ErrMalformedPacket
	}
	s.ReturnCodes = make([]SubackReturnCode, 0, cur.remaining())
	for cur.remaining() > 0 {
		b, err := cur.readByte()
		if err != nil {
			return nil, err
		}
		code := SubackReturnCode(b)
		if !code.Valid() {
			return nil, ErrInvalidReturnCode
		}
		s.ReturnCodes = append(s.ReturnCodes, code)
	}
	return s, nil
}

// NewSuback creates a new SUBACK packet.
func NewSuback(packetID uint16, codes ...SubackReturnCode) *Suback {
	return &Suback{
		PacketID:    packetID,
		ReturnCodes: codes,
	}
}

// NewSubackFor builds the SUBACK for sub. grant is called once per subscription,
// in order, and its result becomes the return code at the same position.
func NewSubackFor(sub *Subscribe, grant func(Subscription) SubackReturnCode) *Suback {
	codes := make([]SubackReturnCode, len(sub.Subscriptions))
	for i, s := range sub.Subscriptions {
		codes[i] = grant(s)
	}
	return &Suback{
		PacketID:    sub.PacketID,
		ReturnCodes: codes,
	}
}
