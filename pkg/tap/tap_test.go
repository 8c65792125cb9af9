package tap

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bromq-dev/mqttwire/pkg/packet"
)

type event struct {
	dir    Direction
	pkt    packet.Packet
	frame  []byte
	err    error
	connID string
}

type recorded struct {
	connects    []ConnInfo
	disconnects []error
	packets     []event
	errors      []event
}

// recorder implements every hook interface.
type recorder struct {
	mu sync.Mutex
	recorded
}

func (r *recorder) ID() string { return "recorder" }

func (r *recorder) OnConnect(ctx context.Context, conn ConnInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connects = append(r.connects, conn)
}

func (r *recorder) OnDisconnect(ctx context.Context, conn ConnInfo, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disconnects = append(r.disconnects, err)
}

func (r *recorder) OnPacket(ctx context.Context, conn ConnInfo, dir Direction, pkt packet.Packet, frame []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.packets = append(r.packets, event{dir: dir, pkt: pkt, frame: append([]byte(nil), frame...), connID: conn.ID})
}

func (r *recorder) OnDecodeError(ctx context.Context, conn ConnInfo, dir Direction, frame []byte, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, event{dir: dir, frame: append([]byte(nil), frame...), err: err, connID: conn.ID})
}

func (r *recorder) snapshot() recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	return recorded{
		connects:    append([]ConnInfo(nil), r.connects...),
		disconnects: append([]error(nil), r.disconnects...),
		packets:     append([]event(nil), r.packets...),
		errors:      append([]event(nil), r.errors...),
	}
}

func handleAsync(ctx context.Context, tp *Tap, conn net.Conn) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer conn.Close()
		tp.HandleConnection(ctx, conn)
	}()
	return done
}

func wait(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("HandleConnection did not return")
	}
}

func write(t *testing.T, w io.Writer, packets ...packet.Packet) {
	t.Helper()
	for _, p := range packets {
		_, err := packet.WritePacket(w, p)
		require.NoError(t, err)
	}
}

func TestTapReadOnly(t *testing.T) {
	rec := &recorder{}
	tp := New(nil)
	tp.AddHook(rec)

	client, server := net.Pipe()
	done := handleAsync(context.Background(), tp, server)

	connect := packet.NewConnect("c1", 60, true)
	publish := packet.NewPublish("a/b", []byte("hi"), false)
	write(t, client, connect, publish, &packet.Disconnect{})
	require.NoError(t, client.Close())
	wait(t, done)

	got := rec.snapshot()
	require.Len(t, got.connects, 1)
	assert.NotEmpty(t, got.connects[0].ID)
	assert.Empty(t, got.connects[0].Upstream)
	assert.Equal(t, []error{nil}, got.disconnects)
	assert.Empty(t, got.errors)

	require.Len(t, got.packets, 3)
	assert.Equal(t, connect, got.packets[0].pkt)
	assert.Equal(t, publish, got.packets[1].pkt)
	assert.Equal(t, &packet.Disconnect{}, got.packets[2].pkt)
	assert.Equal(t, []byte{0x30, 0x07, 0x00, 0x03, 'a', '/', 'b', 'h', 'i'}, got.packets[1].frame)
	for _, ev := range got.packets {
		assert.Equal(t, Inbound, ev.dir)
		assert.Equal(t, got.connects[0].ID, ev.connID)
	}
	assert.Zero(t, tp.Active())
}

func TestTapDecodeErrorClosesConnection(t *testing.T) {
	rec := &recorder{}
	tp := New(nil)
	tp.AddHook(rec)

	client, server := net.Pipe()
	defer client.Close()
	done := handleAsync(context.Background(), tp, server)

	write(t, client, &packet.Pingreq{})
	_, err := client.Write([]byte{0x40, 0x02, 0x00, 0x00})
	require.NoError(t, err)
	wait(t, done)

	got := rec.snapshot()
	require.Len(t, got.packets, 1)
	require.Len(t, got.errors, 1)
	assert.Equal(t, Inbound, got.errors[0].dir)
	assert.Equal(t, []byte{0x40, 0x02, 0x00, 0x00}, got.errors[0].frame)
	assert.ErrorIs(t, got.errors[0].err, packet.ErrInvalidPacketID)

	require.Len(t, got.disconnects, 1)
	var de *packet.DecodeError
	require.True(t, errors.As(got.disconnects[0], &de))
	assert.Equal(t, packet.TypePuback, de.Type)
}

func TestTapRelay(t *testing.T) {
	rec := &recorder{}
	upstreamSide, brokerSide := net.Pipe()

	tp := New(&Config{
		Upstream: "broker:1883",
		Dial: func(ctx context.Context, network, addr string) (net.Conn, error) {
			assert.Equal(t, "tcp", network)
			assert.Equal(t, "broker:1883", addr)
			return upstreamSide, nil
		},
	})
	tp.AddHook(rec)

	// A minimal broker: answer CONNECT with CONNACK and PINGREQ with PINGRESP.
	brokerDone := make(chan []packet.Packet, 1)
	go func() {
		var seen []packet.Packet
		defer func() { brokerDone <- seen }()
		r := packet.NewReader(brokerSide)
		for {
			p, err := r.ReadPacket()
			if err != nil {
				return
			}
			seen = append(seen, p)
			switch p.Type() {
			case packet.TypeConnect:
				packet.WritePacket(brokerSide, packet.NewConnack(false, packet.ConnackAccepted))
			case packet.TypePingreq:
				packet.WritePacket(brokerSide, &packet.Pingresp{})
			}
		}
	}()

	client, server := net.Pipe()
	done := handleAsync(context.Background(), tp, server)

	r := packet.NewReader(client)
	write(t, client, packet.NewConnect("c1", 60, true))
	p, err := r.ReadPacket()
	require.NoError(t, err)
	assert.Equal(t, packet.NewConnack(false, packet.ConnackAccepted), p)

	write(t, client, &packet.Pingreq{})
	p, err = r.ReadPacket()
	require.NoError(t, err)
	assert.Equal(t, &packet.Pingresp{}, p)

	require.NoError(t, client.Close())
	wait(t, done)

	select {
	case seen := <-brokerDone:
		require.Len(t, seen, 2)
		assert.Equal(t, packet.TypeConnect, seen[0].Type())
		assert.Equal(t, packet.TypePingreq, seen[1].Type())
	case <-time.After(5 * time.Second):
		t.Fatal("upstream connection not closed")
	}

	got := rec.snapshot()
	require.Len(t, got.connects, 1)
	assert.Equal(t, "broker:1883", got.connects[0].Upstream)
	assert.Equal(t, []error{nil}, got.disconnects)

	var inbound, outbound []packet.Type
	for _, ev := range got.packets {
		switch ev.dir {
		case Inbound:
			inbound = append(inbound, ev.pkt.Type())
		case Outbound:
			outbound = append(outbound, ev.pkt.Type())
		}
	}
	assert.Equal(t, []packet.Type{packet.TypeConnect, packet.TypePingreq}, inbound)
	assert.Equal(t, []packet.Type{packet.TypeConnack, packet.TypePingresp}, outbound)
}

func TestTapRelayDropsMalformedPacket(t *testing.T) {
	rec := &recorder{}
	upstreamSide, brokerSide := net.Pipe()
	tp := New(&Config{
		Upstream: "broker:1883",
		Dial: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return upstreamSide, nil
		},
	})
	tp.AddHook(rec)

	var relayed atomic.Int32
	go func() {
		r := packet.NewReader(brokerSide)
		for {
			if _, err := r.ReadPacket(); err != nil {
				return
			}
			relayed.Add(1)
		}
	}()

	client, server := net.Pipe()
	defer client.Close()
	done := handleAsync(context.Background(), tp, server)

	_, err := client.Write([]byte{0x36, 0x00})
	require.NoError(t, err)
	wait(t, done)

	assert.Zero(t, relayed.Load())
	got := rec.snapshot()
	require.Len(t, got.errors, 1)
	assert.ErrorIs(t, got.errors[0].err, packet.ErrInvalidQoS)
	assert.Nil(t, got.errors[0].frame, "header errors carry no frame")
}

func TestTapDialFailure(t *testing.T) {
	rec := &recorder{}
	boom := errors.New("connection refused")
	tp := New(&Config{
		Upstream: "broker:1883",
		Dial: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return nil, boom
		},
	})
	tp.AddHook(rec)

	client, server := net.Pipe()
	defer client.Close()
	done := handleAsync(context.Background(), tp, server)
	wait(t, done)

	got := rec.snapshot()
	require.Len(t, got.disconnects, 1)
	assert.ErrorIs(t, got.disconnects[0], boom)
	assert.Contains(t, got.disconnects[0].Error(), "dial upstream broker:1883")
}

func TestTapContextCancel(t *testing.T) {
	rec := &recorder{}
	tp := New(nil)
	tp.AddHook(rec)

	client, server := net.Pipe()
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := handleAsync(ctx, tp, server)

	write(t, client, &packet.Pingreq{})
	assert.Eventually(t, func() bool { return tp.Active() == 1 }, 5*time.Second, 5*time.Millisecond)

	cancel()
	wait(t, done)

	got := rec.snapshot()
	assert.Equal(t, []error{nil}, got.disconnects)
	assert.Len(t, got.packets, 1)
	assert.Zero(t, tp.Active())
}

func TestTapMaxPacketSize(t *testing.T) {
	rec := &recorder{}
	tp := New(&Config{MaxPacketSize: 16})
	tp.AddHook(rec)

	client, server := net.Pipe()
	defer client.Close()
	done := handleAsync(context.Background(), tp, server)

	// Only the header is sent; the tap must give up without waiting for the body.
	_, err := client.Write([]byte{0x30, 0x80, 0x01})
	require.NoError(t, err)
	wait(t, done)

	got := rec.snapshot()
	require.Len(t, got.errors, 1)
	assert.ErrorIs(t, got.errors[0].err, packet.ErrPacketTooLarge)
}

func TestHooksRegister(t *testing.T) {
	h := NewHooks()
	rec := &recorder{}
	h.Register(rec)
	h.Register(idOnly{})

	info := ConnInfo{ID: "x"}
	h.OnConnect(context.Background(), info)
	h.OnPacket(context.Background(), info, Outbound, &packet.Pingresp{}, []byte{0xD0, 0x00})
	h.OnDecodeError(context.Background(), info, Inbound, nil, packet.ErrTruncated)
	h.OnDisconnect(context.Background(), info, nil)

	got := rec.snapshot()
	assert.Len(t, got.connects, 1)
	assert.Len(t, got.packets, 1)
	assert.Len(t, got.errors, 1)
	assert.Len(t, got.disconnects, 1)
}

type idOnly struct{}

func (idOnly) ID() string { return "id-only" }

func TestDirectionString(t *testing.T) {
	assert.Equal(t, "inbound", Inbound.String())
	assert.Equal(t, "outbound", Outbound.String())
	assert.Equal(t, "unknown", Direction(0).String())
}
