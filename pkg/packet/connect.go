package packet

// Connect represents an MQTT CONNECT packet.
// MQTT 3.1.1 Section 3.1
type Connect struct {
	// Protocol identification
	ProtocolName  string  // "MQTT" for 3.1.1, "MQIsdp" for 3.1
	ProtocolLevel Version // 4 for 3.1.1, 3 for 3.1

	// Connect flags
	CleanSession bool
	WillFlag     bool
	WillQoS      QoS  // Ignored when WillFlag is false
	WillRetain   bool // Ignored when WillFlag is false
	PasswordFlag bool
	UsernameFlag bool

	// Keep alive (seconds)
	KeepAlive uint16

	// Payload fields
	ClientID    string
	WillTopic   string // Present iff WillFlag
	WillMessage []byte // Present iff WillFlag
	Username    string // Present iff UsernameFlag
	Password    []byte // Present iff PasswordFlag
}

// Type returns TypeConnect.
func (c *Connect) Type() Type {
	return TypeConnect
}

// Flags packs the connect flags byte. Will QoS and retain are only set with the will flag.
func (c *Connect) Flags() ConnectFlags {
	var flags ConnectFlags
	if c.CleanSession {
		flags |= connectFlagCleanSession
	}
	if c.WillFlag {
		flags |= connectFlagWill
		flags |= ConnectFlags(c.WillQoS&0x03) << connectFlagWillQoSShift
		if c.WillRetain {
			flags |= connectFlagWillRetain
		}
	}
	if c.PasswordFlag {
		flags |= connectFlagPassword
	}
	if c.UsernameFlag {
		flags |= connectFlagUsername
	}
	return flags
}

func (c *Connect) protocol() (string, Version) {
	name, level := c.ProtocolName, c.ProtocolLevel
	if level == 0 {
		level = Version311
	}
	if name == "" {
		name = level.ProtocolName()
	}
	return name, level
}

func (c *Connect) bodySize() int {
	name, _ := c.protocol()

	// Variable header: protocol name (2 + len) + level (1) + flags (1) + keepalive (2)
	size := 2 + len(name) + 1 + 1 + 2

	size += 2 + len(c.ClientID)
	if c.WillFlag {
		size += 2 + len(c.WillTopic)
		size += 2 + len(c.WillMessage)
	}
	if c.UsernameFlag {
		size += 2 + len(c.Username)
	}
	if c.PasswordFlag {
		size += 2 + len(c.Password)
	}
	return size
}

// EncodedSize returns the total size of the encoded CONNECT packet.
func (c *Connect) EncodedSize() int {
	return packetSize(c.bodySize())
}

func (c *Connect) validate() error {
	name, level := c.protocol()
	if level != Version311 && level != Version31 {
		return invalidArg(TypeConnect, "unsupported protocol level %d", level)
	}
	if name != level.ProtocolName() {
		return invalidArg(TypeConnect, "protocol name %q does not match level %d", name, level)
	}
	if c.WillFlag && !c.WillQoS.Valid() {
		return invalidArg(TypeConnect, "will QoS %d", c.WillQoS)
	}
	if c.PasswordFlag && !c.UsernameFlag {
		return invalidArg(TypeConnect, "password flag set without username flag")
	}
	if err := checkString(TypeConnect, "client identifier", c.ClientID); err != nil {
		return err
	}
	if c.WillFlag {
		if err := checkString(TypeConnect, "will topic", c.WillTopic); err != nil {
			return err
		}
		if err := checkBytes(TypeConnect, "will message", c.WillMessage); err != nil {
			return err
		}
	}
	if c.UsernameFlag {
		if err := checkString(TypeConnect, "username", c.Username); err != nil {
			return err
		}
	}
	if c.PasswordFlag {
		if err := checkBytes(TypeConnect, "password", c.Password); err != nil {
			return err
		}
	}
	return nil
}

// Encode encodes the CONNECT packet into buf.
// An empty ProtocolName or zero ProtocolLevel is encoded as MQTT 3.1.1.
func (c *Connect) Encode(buf []byte) (int, error) {
	if err := c.validate(); err != nil {
		return 0, err
	}
	name, level := c.protocol()

	return encodePacket(buf, headerFor(TypeConnect), c.bodySize(), func(b []byte) {
		pos := EncodeString(b, name)
		b[pos] = byte(level)
		pos++
		b[pos] = byte(c.Flags())
		pos++
		pos += EncodeUint16(b[pos:], c.KeepAlive)

		pos += EncodeString(b[pos:], c.ClientID)
		if c.WillFlag {
			pos += EncodeString(b[pos:], c.WillTopic)
			pos += EncodeBytes(b[pos:], c.WillMessage)
		}
		if c.UsernameFlag {
			pos += EncodeString(b[pos:], c.Username)
		}
		if c.PasswordFlag {
			EncodeBytes(b[pos:], c.Password)
		}
	})
}

// decodeConnect decodes a CONNECT body.
func decodeConnect(cur *cursor) (*Connect, error) {
	c := &Connect{}

	// Protocol name and level
	name, err := cur.readString()
	if err != nil {
		return nil, err
	}
	c.ProtocolName = name

	level, err := cur.readByte()
	if err != nil {
		return nil, err
	}
	c.ProtocolLevel = Version(level)

	switch {
	case name == ProtocolNameV311 && c.ProtocolLevel == Version311,
		name == ProtocolNameV31 && c.ProtocolLevel == Version31:
	case name == ProtocolNameV311 || name == ProtocolNameV31:
		return nil, ErrInvalidProtocolVersion
	default:
		return nil, ErrInvalidProtocolName
	}

	// Connect flags
	b, err := cur.readByte()
	if err != nil {
		return nil, err
	}
	flags := ConnectFlags(b)
	if flags.Reserved() {
		return nil, ErrInvalidFlags
	}

	c.CleanSession = flags.CleanSession()
	c.WillFlag = flags.Will()
	c.PasswordFlag = flags.Password()
	c.UsernameFlag = flags.Username()

	if c.WillFlag {
		c.WillQoS = flags.WillQoS()
		c.WillRetain = flags.WillRetain()
		if !c.WillQoS.Valid() {
			return nil, ErrInvalidQoS
		}
	} else if flags.WillQoS() != QoS0 || flags.WillRetain() {
		// MQTT-3.1.2-13, MQTT-3.1.2-15
		return nil, ErrMalformedPacket
	}

	// MQTT-3.1.2-22
	if c.PasswordFlag && !c.UsernameFlag {
		return nil, ErrMalformedPacket
	}

	if c.KeepAlive, err = cur.readUint16(); err != nil {
		return nil, err
	}

	// Payload
	if c.ClientID, err = cur.readString(); err != nil {
		return nil, err
	}

	if c.WillFlag {
		if c.WillTopic, err = cur.readString(); err != nil {
			return nil, err
		}
		if err := validateTopicName(cur.opts, c.WillTopic); err != nil {
			return nil, err
		}
		if c.WillMessage, err = cur.readBinary(); err != nil {
			return nil, err
		}
	}

	if c.UsernameFlag {
		if c.Username, err = cur.readString(); err != nil {
			return nil, err
		}
	}

	if c.PasswordFlag {
		if c.Password, err = cur.readBinary(); err != nil {
			return nil, err
		}
	}

	if err := cur.done(); err != nil {
		return nil, err
	}
	return c, nil
}

// NewConnect creates an MQTT 3.1.1 CONNECT packet with no will and no credentials.
func NewConnect(clientID string, keepAlive uint16, cleanSession bool) *Connect {
	return &Connect{
		ProtocolName:  ProtocolNameV311,
		ProtocolLevel: Version311,
		CleanSession:  cleanSession,
		KeepAlive:     keepAlive,
		ClientID:      clientID,
	}
}

// SetWill sets the will message and its flags.
func (c *Connect) SetWill(topic string, message []byte, qos QoS, retain bool) *Connect {
	c.WillFlag = true
	c.WillTopic = topic
	c.WillMessage = message
	c.WillQoS = qos
	c.WillRetain = retain
	return c
}

// SetCredentials sets the username and, when password is non-nil, the password.
func (c *Connect) SetCredentials(username string, password []byte) *Connect {
	c.UsernameFlag = true
	c.Username = username
	if password != nil {
		c.PasswordFlag = true
		c.Password = password
	}
	return c
}
