package packet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// connectWire builds a CONNECT with the given protocol, flags and payload,
// keep alive 60.
func connectWire(name string, level byte, flags byte, payload ...byte) []byte {
	body := []byte{0x00, byte(len(name))}
	body = append(body, name...)
	body = append(body, level, flags, 0x00, 0x3C)
	body = append(body, payload...)

	wire := []byte{0x10}
	wire, _ = AppendVarInt(wire, uint32(len(body)))
	return append(wire, body...)
}

func TestConnectFullEncoding(t *testing.T) {
	c := NewConnect("id", 10, false).
		SetWill("w", []byte("m"), QoS1, true).
		SetCredentials("u", []byte("p"))

	want := []byte{
		0x10, 0x1A,
		0x00, 0x04, 'M', 'Q', 'T', 'T',
		0x04,
		0xEC,
		0x00, 0x0A,
		0x00, 0x02, 'i', 'd',
		0x00, 0x01, 'w',
		0x00, 0x01, 'm',
		0x00, 0x01, 'u',
		0x00, 0x01, 'p',
	}

	assert.Equal(t, ConnectFlags(0xEC), c.Flags())

	wire, err := Encode(c)
	require.NoError(t, err)
	assert.Equal(t, want, wire)

	p, _, err := Decode(want)
	require.NoError(t, err)
	assert.Equal(t, c, p)
}

func TestConnectDefaultsToMQTT311(t *testing.T) {
	wire, err := Encode(&Connect{ClientID: "c", KeepAlive: 60, CleanSession: true})
	require.NoError(t, err)

	want, err := Encode(NewConnect("c", 60, true))
	require.NoError(t, err)
	assert.Equal(t, want, wire)

	// A 3.1 level alone picks the 3.1 protocol name.
	wire, err = Encode(&Connect{ProtocolLevel: Version31, ClientID: "c"})
	require.NoError(t, err)
	p, _, err := Decode(wire)
	require.NoError(t, err)
	assert.Equal(t, ProtocolNameV31, p.(*Connect).ProtocolName)
}

func TestConnectWillFlagsIgnoredWithoutWill(t *testing.T) {
	c := &Connect{ClientID: "c", WillQoS: QoS2, WillRetain: true}
	assert.Equal(t, ConnectFlags(0), c.Flags())

	wire, err := Encode(c)
	require.NoError(t, err)
	p, _, err := Decode(wire)
	require.NoError(t, err)
	assert.Equal(t, QoS0, p.(*Connect).WillQoS)
	assert.False(t, p.(*Connect).WillRetain)
}

func TestDecodeConnectErrors(t *testing.T) {
	clientID := []byte{0x00, 0x01, 'c'}

	tests := []struct {
		name    string
		input   []byte
		wantErr error
	}{
		{name: "MQTT with level 3", input: connectWire("MQTT", 3, 0x02, clientID...), wantErr: ErrInvalidProtocolVersion},
		{name: "MQTT with level 5", input: connectWire("MQTT", 5, 0x02, clientID...), wantErr: ErrInvalidProtocolVersion},
		{name: "MQIsdp with level 4", input: connectWire("MQIsdp", 4, 0x02, clientID...), wantErr: ErrInvalidProtocolVersion},
		{name: "unknown protocol name", input: connectWire("MQTX", 4, 0x02, clientID...), wantErr: ErrInvalidProtocolName},
		{name: "reserved flag bit", input: connectWire("MQTT", 4, 0x03, clientID...), wantErr: ErrInvalidFlags},
		{name: "will qos without will", input: connectWire("MQTT", 4, 0x08, clientID...), wantErr: ErrMalformedPacket},
		{name: "will retain without will", input: connectWire("MQTT", 4, 0x20, clientID...), wantErr: ErrMalformedPacket},
		{name: "will qos3", input: connectWire("MQTT", 4, 0x1C, 0x00, 0x01, 'c', 0x00, 0x01, 'w', 0x00, 0x00), wantErr: ErrInvalidQoS},
		{name: "password without username", input: connectWire("MQTT", 4, 0x40, 0x00, 0x01, 'c', 0x00, 0x01, 'p'), wantErr: ErrMalformedPacket},
		{name: "missing client id", input: connectWire("MQTT", 4, 0x02), wantErr: ErrTruncated},
		{name: "missing will topic", input: connectWire("MQTT", 4, 0x04, clientID...), wantErr: ErrTruncated},
		{name: "missing username", input: connectWire("MQTT", 4, 0x80, clientID...), wantErr: ErrTruncated},
		{name: "trailing bytes", input: connectWire("MQTT", 4, 0x02, 0x00, 0x01, 'c', 0xFF), wantErr: ErrTrailingBytes},
		{name: "truncated variable header", input: []byte{0x10, 0x07, 0x00, 0x04, 'M', 'Q', 'T', 'T', 0x04}, wantErr: ErrTruncated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Decode(tt.input)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDecodeConnectValidation(t *testing.T) {
	t.Run("client id utf8", func(t *testing.T) {
		wire := connectWire("MQTT", 4, 0x02, 0x00, 0x02, 'c', 0xFF)

		p, _, err := Decode(wire)
		require.NoError(t, err)
		assert.Equal(t, "c\xff", p.(*Connect).ClientID)

		_, _, err = DecodeOptions{ValidateUTF8: true}.Decode(wire)
		assert.ErrorIs(t, err, ErrInvalidUTF8)
	})

	t.Run("will topic", func(t *testing.T) {
		wire, err := Encode(NewConnect("c", 0, true).SetWill("status/#", []byte("x"), QoS0, false))
		require.NoError(t, err)

		_, _, err = Decode(wire)
		require.NoError(t, err)

		_, _, err = Strict().Decode(wire)
		assert.ErrorIs(t, err, ErrInvalidTopic)
	})

	t.Run("empty will message and password are nil", func(t *testing.T) {
		wire, err := Encode(NewConnect("c", 0, true).SetWill("w", nil, QoS0, false).SetCredentials("u", []byte{}))
		require.NoError(t, err)

		p, _, err := Decode(wire)
		require.NoError(t, err)
		c := p.(*Connect)
		assert.True(t, c.WillFlag)
		assert.Nil(t, c.WillMessage)
		assert.True(t, c.PasswordFlag)
		assert.Nil(t, c.Password)
	})
}
