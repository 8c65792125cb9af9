package packet

// Publish represents an MQTT PUBLISH packet.
// MQTT 3.1.1 Section 3.3
type Publish struct {
	// Fixed header flags
	Dup    bool // Duplicate delivery flag
	QoS    QoS  // Quality of Service level
	Retain bool // Retain flag

	// Variable header
	TopicName string
	PacketID  uint16 // Present on the wire iff QoS > 0; zero means absent

	// Payload, nil when empty
	Payload []byte
}

// Type returns TypePublish.
func (p *Publish) Type() Type {
	return TypePublish
}

// Header returns the fixed header byte for this PUBLISH packet.
func (p *Publish) Header() Header {
	return NewPublishHeader(p.Dup, p.QoS, p.Retain)
}

func (p *Publish) bodySize() int {
	size := 2 + len(p.TopicName)
	if p.QoS > QoS0 {
		size += 2
	}
	return size + len(p.Payload)
}

// EncodedSize returns the total size of the encoded PUBLISH packet.
func (p *Publish) EncodedSize() int {
	return packetSize(p.bodySize())
}

func (p *Publish) validate() error {
	if !p.QoS.Valid() {
		return invalidArg(TypePublish, "QoS %d", p.QoS)
	}
	if p.QoS == QoS0 {
		if p.PacketID != 0 {
			return invalidArg(TypePublish, "packet identifier %d supplied with QoS 0", p.PacketID)
		}
		// MQTT-3.3.1-2
		if p.Dup {
			return invalidArg(TypePublish, "DUP set with QoS 0")
		}
	} else if p.PacketID == 0 {
		return invalidArg(TypePublish, "packet identifier required with %s", p.QoS)
	}
	return checkString(TypePublish, "topic name", p.TopicName)
}

// Encode encodes the PUBLISH packet into buf.
func (p *Publish) Encode(buf []byte) (int, error) {
	if err := p.validate(); err != nil {
		return 0, err
	}

	return encodePacket(buf, p.Header(), p.bodySize(), func(b []byte) {
		pos := EncodeString(b, p.TopicName)
		if p.QoS > QoS0 {
			pos += EncodeUint16(b[pos:], p.PacketID)
		}
		copy(b[pos:], p.Payload)
	})
}

// decodePublish decodes a PUBLISH body. Whether a packet identifier follows
// the topic depends on the QoS carried in the fixed header.
func decodePublish(h Header, cur *cursor) (*Publish, error) {
	p := &Publish{
		Dup:    h.Dup(),
		QoS:    h.QoS(),
		Retain: h.Retain(),
	}

	if !p.QoS.Valid() {
		return nil, ErrInvalidQoS
	}
	// MQTT-3.3.1-2
	if p.QoS == QoS0 && p.Dup {
		return nil, ErrInvalidFlags
	}

	topic, err := cur.readString()
	if err != nil {
		return nil, err
	}
	if err := validateTopicName(cur.opts, topic); err != nil {
		return nil, err
	}
	p.TopicName = topic

	if p.QoS > QoS0 {
		if p.PacketID, err = cur.readPacketID(); err != nil {
			return nil, err
		}
	}

	p.Payload = cur.rest()
	return p, nil
}

// NewPublish creates a new QoS 0 PUBLISH packet.
func NewPublish(topic string, payload []byte, retain bool) *Publish {
	return &Publish{
		TopicName: topic,
		Payload:   payload,
		Retain:    retain,
	}
}

// NewPublishQoS creates a PUBLISH packet at QoS 1 or 2 with the caller's packet identifier.
func NewPublishQoS(topic string, payload []byte, qos QoS, packetID uint16, retain bool) *Publish {
	return &Publish{
		TopicName: topic,
		Payload:   payload,
		QoS:       qos,
		PacketID:  packetID,
		Retain:    retain,
	}
}
