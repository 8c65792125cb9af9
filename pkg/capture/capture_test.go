package capture

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bromq-dev/mqttwire/pkg/packet"
)

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestWriterReader(t *testing.T) {
	records := []Record{
		{Time: epoch, ConnID: "c1", Direction: "inbound", Frame: []byte{0xC0, 0x00}},
		{Time: epoch.Add(time.Millisecond), ConnID: "c1", Direction: "outbound", Frame: []byte{0xD0, 0x00}},
		{Time: epoch.Add(2 * time.Millisecond), ConnID: "c2", Direction: "inbound", Frame: []byte{0x40, 0x02, 0x00, 0x00}, Error: "packet: decode PUBACK: invalid packet identifier"},
	}

	var buf bytes.Buffer
	w := NewWriter(&buf)
	for _, rec := range records {
		require.NoError(t, w.Write(rec))
	}

	r := NewReader(&buf)
	for _, want := range records {
		got, err := r.Next()
		require.NoError(t, err)
		assert.True(t, want.Time.Equal(got.Time))
		assert.Equal(t, want.ConnID, got.ConnID)
		assert.Equal(t, want.Direction, got.Direction)
		assert.Equal(t, want.Frame, got.Frame)
		assert.Equal(t, want.Error, got.Error)
	}

	_, err := r.Next()
	assert.Equal(t, io.EOF, err)
}

func TestReaderCorrupt(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte{0xC1}))
	_, err := r.Next()
	require.Error(t, err)
	assert.NotErrorIs(t, err, io.EOF)
}

func TestMarshalUnmarshal(t *testing.T) {
	rec := Record{Time: epoch, ConnID: "c1", Direction: "inbound", Frame: []byte{0xE0, 0x00}}
	data, err := rec.Marshal()
	require.NoError(t, err)

	got, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, rec.ConnID, got.ConnID)
	assert.Equal(t, rec.Frame, got.Frame)
	assert.True(t, rec.Time.Equal(got.Time))

	_, err = Unmarshal([]byte{0xC1})
	assert.Error(t, err)
}

func TestReplay(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	frames := [][]byte{
		{0x30, 0x07, 0x00, 0x03, 'a', '/', 'b', 'h', 'i'},
		{0x40, 0x02, 0x00, 0x00},
		nil,
		{0xC0, 0x00, 0xD0, 0x00},
		{0x30, 0x05, 0x00, 0x03, 'a', '/', '+'},
	}
	for i, f := range frames {
		require.NoError(t, w.Write(Record{Time: epoch.Add(time.Duration(i) * time.Second), ConnID: "c", Direction: "inbound", Frame: f}))
	}

	type result struct {
		pkt packet.Packet
		err error
	}
	replay := func(opts packet.DecodeOptions) []result {
		var out []result
		err := Replay(bytes.NewReader(buf.Bytes()), opts, func(rec Record, pkt packet.Packet, err error) error {
			out = append(out, result{pkt: pkt, err: err})
			return nil
		})
		require.NoError(t, err)
		return out
	}

	got := replay(packet.DecodeOptions{})
	require.Len(t, got, 5)

	assert.NoError(t, got[0].err)
	assert.Equal(t, packet.NewPublish("a/b", []byte("hi"), false), got[0].pkt)

	assert.ErrorIs(t, got[1].err, packet.ErrInvalidPacketID)
	assert.Nil(t, got[1].pkt)

	assert.ErrorIs(t, got[2].err, packet.ErrTruncated)
	assert.ErrorIs(t, got[3].err, packet.ErrTrailingBytes)
	assert.Nil(t, got[3].pkt)

	assert.NoError(t, got[4].err)

	strict := replay(packet.Strict())
	assert.ErrorIs(t, strict[4].err, packet.ErrInvalidTopic)
}

func TestReplayStops(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	for i := 0; i < 3; i++ {
		require.NoError(t, w.Write(Record{Time: epoch, Frame: []byte{0xC0, 0x00}}))
	}

	stop := errors.New("stop")
	calls := 0
	err := Replay(&buf, packet.DecodeOptions{}, func(rec Record, pkt packet.Packet, err error) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}
