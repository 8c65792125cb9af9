package packet

import (
	"errors"
	"io"
	"sync"
)

const defaultReaderBufferSize = 4096

// Reader reads MQTT packets from an io.Reader.
// It keeps one growing buffer and decodes packets out of it in place.
type Reader struct {
	r    io.Reader
	buf  []byte
	pos  int
	end  int
	opts DecodeOptions
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithBufferSize sets the initial read buffer size. Values below 1024 are raised to 1024.
func WithBufferSize(n int) ReaderOption {
	return func(r *Reader) {
		if n < 1024 {
			n = 1024
		}
		r.buf = make([]byte, n)
	}
}

// WithMaxPacketSize limits the total size of a packet, fixed header included.
// Larger packets are rejected with ErrPacketTooLarge before their body is read.
func WithMaxPacketSize(n int) ReaderOption {
	return func(r *Reader) {
		r.opts.MaxPacketSize = n
	}
}

// WithDecodeOptions sets the decode options used for every packet.
// A MaxPacketSize set earlier with WithMaxPacketSize is kept when o leaves it zero.
func WithDecodeOptions(o DecodeOptions) ReaderOption {
	return func(r *Reader) {
		if o.MaxPacketSize == 0 {
			o.MaxPacketSize = r.opts.MaxPacketSize
		}
		r.opts = o
	}
}

// NewReader creates a new packet reader.
func NewReader(r io.Reader, opts ...ReaderOption) *Reader {
	rd := &Reader{r: r}
	for _, opt := range opts {
		opt(rd)
	}
	if rd.buf == nil {
		rd.buf = make([]byte, defaultReaderBufferSize)
	}
	return rd
}

// fill reads more data into the buffer.
func (r *Reader) fill() error {
	// Shift remaining data to the beginning
	if r.pos > 0 {
		copy(r.buf, r.buf[r.pos:r.end])
		r.end -= r.pos
		r.pos = 0
	}

	// Grow buffer if needed
	if r.end == len(r.buf) {
		newBuf := make([]byte, len(r.buf)*2)
		copy(newBuf, r.buf)
		r.buf = newBuf
	}

	n, err := r.r.Read(r.buf[r.end:])
	if n > 0 {
		r.end += n
	}
	return err
}

// available returns the number of unread bytes in the buffer.
func (r *Reader) available() int {
	return r.end - r.pos
}

// need reads until at least n bytes are buffered.
// A stream ending between packets returns io.EOF, inside one io.ErrUnexpectedEOF.
func (r *Reader) need(n int) error {
	for r.available() < n {
		err := r.fill()
		if r.available() >= n {
			return nil
		}
		if err != nil {
			if errors.Is(err, io.EOF) && r.available() > 0 {
				return io.ErrUnexpectedEOF
			}
			return err
		}
	}
	return nil
}

// ReadPacket reads the next packet from the reader.
// Decode failures are returned as *DecodeError; I/O failures are returned as is.
func (r *Reader) ReadPacket() (Packet, error) {
	p, _, err := r.ReadFrame()
	return p, err
}

// ReadFrame reads the next packet and also returns its raw encoding.
// The frame aliases the reader's buffer and is only valid until the next read.
// When the body fails to decode the frame is still returned alongside the error.
func (r *Reader) ReadFrame() (Packet, []byte, error) {
	if err := r.need(1); err != nil {
		return nil, nil, err
	}

	// The remaining length is at most 4 bytes; keep reading until it parses.
	var fh FixedHeader
	var headerLen int
	for {
		var err error
		fh, headerLen, err = decodeFixedHeader(r.buf[r.pos:r.end], &r.opts)
		if err == nil {
			break
		}
		if !errors.Is(err, ErrTruncated) || r.available() >= 5 {
			return nil, nil, decodeError(leadingType(r.buf[r.pos:r.end]), err)
		}
		if err := r.need(r.available() + 1); err != nil {
			return nil, nil, err
		}
	}

	totalLen := headerLen + int(fh.RemainingLength)
	if totalLen > r.opts.maxPacketSize() {
		return nil, nil, decodeError(fh.Header.Type(), ErrPacketTooLarge)
	}

	// The buffer grows by doubling as bytes arrive, never to the declared
	// length up front.
	if err := r.need(totalLen); err != nil {
		return nil, nil, err
	}

	frame := r.buf[r.pos : r.pos+totalLen]
	r.pos += totalLen

	p, err := decodeBody(fh.Header, frame[headerLen:], &r.opts)
	if err != nil {
		return nil, frame, decodeError(fh.Header.Type(), err)
	}
	return p, frame, nil
}

// WritePacket encodes p and writes it to w in a single Write call.
// Returns the number of bytes written.
func WritePacket(w io.Writer, p Packet) (int, error) {
	if p == nil {
		return 0, invalidArg(TypeReserved0, "nil packet")
	}

	size := p.EncodedSize()
	buf := GetBuffer()
	if cap(buf) < size {
		buf = make([]byte, size)
	}
	defer PutBuffer(buf)

	n, err := p.Encode(buf[:size])
	if err != nil {
		return 0, err
	}
	return w.Write(buf[:n])
}

// BufferPool provides a pool of reusable buffers for packet encoding.
var BufferPool = sync.Pool{
	New: func() any {
		buf := make([]byte, 4096)
		return &buf
	},
}

// GetBuffer returns a buffer from the pool.
func GetBuffer() []byte {
	return *BufferPool.Get().(*[]byte)
}

// PutBuffer returns a buffer to the pool.
func PutBuffer(buf []byte) {
	// Only return buffers of reasonable size
	if cap(buf) <= 65536 {
		buf = buf[:cap(buf)]
		BufferPool.Put(&buf)
	}
}
