// Package capture stores tapped MQTT frames as a stream of msgpack records
// and reads them back for offline decoding.
package capture

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/bromq-dev/mqttwire/pkg/packet"
)

// Record is one captured frame.
type Record struct {
	Time      time.Time `msgpack:"time"`
	ConnID    string    `msgpack:"conn_id"`
	Direction string    `msgpack:"direction"`
	// Frame is the raw packet as read from the wire, fixed header included.
	// It may be malformed or nil when the record captures a decode failure.
	Frame []byte `msgpack:"frame"`
	// Error holds the decode error text for frames that failed to decode.
	Error string `msgpack:"error,omitempty"`
}

// Marshal encodes the record as a single msgpack value.
func (r *Record) Marshal() ([]byte, error) {
	return msgpack.Marshal(r)
}

// Unmarshal decodes a record produced by Marshal.
func Unmarshal(data []byte) (Record, error) {
	var rec Record
	if err := msgpack.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("capture: unmarshal record: %w", err)
	}
	return rec, nil
}

// Writer appends records to an io.Writer. It is safe for concurrent use.
type Writer struct {
	mu  sync.Mutex
	bw  *bufio.Writer
	enc *msgpack.Encoder
}

// NewWriter creates a Writer.
func NewWriter(w io.Writer) *Writer {
	bw := bufio.NewWriter(w)
	return &Writer{
		bw:  bw,
		enc: msgpack.NewEncoder(bw),
	}
}

// Write encodes rec and flushes it to the underlying writer.
func (w *Writer) Write(rec Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.enc.Encode(&rec); err != nil {
		return fmt.Errorf("capture: encode record: %w", err)
	}
	if err := w.bw.Flush(); err != nil {
		return fmt.Errorf("capture: write record: %w", err)
	}
	return nil
}

// Reader reads records written by Writer.
type Reader struct {
	dec *msgpack.Decoder
}

// NewReader creates a Reader.
func NewReader(r io.Reader) *Reader {
	return &Reader{dec: msgpack.NewDecoder(bufio.NewReader(r))}
}

// Next returns the next record, or io.EOF after the last one.
func (r *Reader) Next() (Record, error) {
	var rec Record
	if err := r.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		return Record{}, fmt.Errorf("capture: read record: %w", err)
	}
	return rec, nil
}

// ReplayFunc receives each record with its decoded packet. When decoding
// fails pkt is nil and err is the decode error. Returning an error stops the replay.
type ReplayFunc func(rec Record, pkt packet.Packet, err error) error

// Replay decodes every record in r with opts and calls fn for each.
// It returns nil at the end of the capture.
func Replay(r io.Reader, opts packet.DecodeOptions, fn ReplayFunc) error {
	cr := NewReader(r)
	for {
		rec, err := cr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		var pkt packet.Packet
		var decodeErr error
		if len(rec.Frame) == 0 {
			decodeErr = fmt.Errorf("capture: empty frame: %w", packet.ErrTruncated)
		} else {
			var n int
			pkt, n, decodeErr = opts.Decode(rec.Frame)
			if decodeErr == nil && n != len(rec.Frame) {
				pkt, decodeErr = nil, fmt.Errorf("capture: %d bytes after packet: %w", len(rec.Frame)-n, packet.ErrTrailingBytes)
			}
		}

		if err := fn(rec, pkt, decodeErr); err != nil {
			return err
		}
	}
}
