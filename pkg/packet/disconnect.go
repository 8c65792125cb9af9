package packet

// Disconnect represents an MQTT DISCONNECT packet. It has no variable header or payload.
// MQTT 3.1.1 Section 3.14
type Disconnect struct{}

// Type returns TypeDisconnect.
func (d *Disconnect) Type() Type {
	return TypeDisconnect
}

// EncodedSize returns the total size of the encoded DISCONNECT packet.
func (d *Disconnect) EncodedSize() int {
	return 2
}

// Encode encodes the DISCONNECT packet into buf.
func (d *Disconnect) Encode(buf []byte) (int, error) {
	return encodeEmpty(buf, TypeDisconnect)
}
