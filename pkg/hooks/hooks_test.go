package hooks

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bromq-dev/mqttwire/pkg/capture"
	"github.com/bromq-dev/mqttwire/pkg/packet"
	"github.com/bromq-dev/mqttwire/pkg/tap"
)

var (
	testConn  = tap.ConnInfo{ID: "conn-1", RemoteAddr: "10.0.0.1:5555"}
	testFrame = []byte{0x30, 0x07, 0x00, 0x03, 'a', '/', 'b', 'h', 'i'}
	testNow   = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
)

func decodeErr() error {
	_, _, err := packet.Decode([]byte{0x30, 0x0B, 0x00})
	return err
}

func TestMetricsHook(t *testing.T) {
	reg := prometheus.NewRegistry()
	h := NewMetricsHook(MetricsConfig{Registerer: reg})
	ctx := context.Background()
	pub := packet.NewPublish("a/b", []byte("hi"), false)

	h.OnConnect(ctx, testConn)
	h.OnConnect(ctx, testConn)
	h.OnPacket(ctx, testConn, tap.Inbound, pub, testFrame)
	h.OnPacket(ctx, testConn, tap.Inbound, pub, testFrame)
	h.OnPacket(ctx, testConn, tap.Outbound, &packet.Pingresp{}, []byte{0xD0, 0x00})
	h.OnDecodeError(ctx, testConn, tap.Inbound, nil, decodeErr())
	h.OnDisconnect(ctx, testConn, nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(h.packets.WithLabelValues("PUBLISH", "inbound")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.packets.WithLabelValues("PINGRESP", "outbound")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.decodeErrors.WithLabelValues("truncated", "inbound")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.connections))
	assert.Equal(t, 2.0, testutil.ToFloat64(h.connTotal))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "mqttwire_packets_total")
	assert.Contains(t, names, "mqttwire_packet_size_bytes")

	assert.Panics(t, func() { NewMetricsHook(MetricsConfig{Registerer: reg}) })
	assert.NotPanics(t, func() { NewMetricsHook(MetricsConfig{Registerer: reg, Namespace: "other"}) })
}

func TestLoggerHook(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	h := NewLoggerHook(LoggerConfig{Logger: logger})
	ctx := context.Background()
	assert.Equal(t, "logger", h.ID())

	h.OnConnect(ctx, testConn)
	h.OnPacket(ctx, testConn, tap.Inbound, packet.NewPublishQoS("a/b", []byte("hi"), packet.QoS1, 7, false), testFrame)
	h.OnPacket(ctx, testConn, tap.Inbound, packet.NewSubscribe(3, packet.Subscription{TopicFilter: "x/#"}), nil)
	h.OnDecodeError(ctx, testConn, tap.Inbound, nil, decodeErr())
	h.OnDisconnect(ctx, testConn, errors.New("reset"))

	out := buf.String()
	assert.Contains(t, out, `"msg":"connection opened"`)
	assert.Contains(t, out, `"remote_addr":"10.0.0.1:5555"`)
	assert.Contains(t, out, `"packet_type":"PUBLISH"`)
	assert.Contains(t, out, `"topic":"a/b"`)
	assert.Contains(t, out, `"packet_id":7`)
	assert.Contains(t, out, `"filters":["x/#"]`)
	assert.Contains(t, out, `"msg":"decode failed"`)
	assert.Contains(t, out, `"kind":"truncated"`)
	assert.Contains(t, out, `"error":"reset"`)
}

func TestLoggerHookLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	h := NewLoggerHook(LoggerConfig{Logger: logger, Level: LogLevelError})
	ctx := context.Background()

	h.OnConnect(ctx, testConn)
	h.OnPacket(ctx, testConn, tap.Inbound, &packet.Pingreq{}, []byte{0xC0, 0x00})
	h.OnDisconnect(ctx, testConn, nil)
	assert.Empty(t, buf.String())

	h.OnDecodeError(ctx, testConn, tap.Inbound, nil, decodeErr())
	assert.Contains(t, buf.String(), "decode failed")

	// Packets are logged at debug level only.
	buf.Reset()
	info := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	h = NewLoggerHook(LoggerConfig{Logger: info})
	h.OnPacket(ctx, testConn, tap.Inbound, &packet.Pingreq{}, []byte{0xC0, 0x00})
	assert.Empty(t, buf.String())
}

func TestCaptureHook(t *testing.T) {
	var buf bytes.Buffer
	h := NewCaptureHook(CaptureConfig{Writer: capture.NewWriter(&buf)})
	h.now = func() time.Time { return testNow }
	ctx := context.Background()
	assert.Equal(t, "capture", h.ID())

	h.OnPacket(ctx, testConn, tap.Inbound, packet.NewPublish("a/b", []byte("hi"), false), testFrame)
	h.OnDecodeError(ctx, testConn, tap.Outbound, []byte{0x40, 0x02, 0x00, 0x00}, errors.New("bad id"))

	r := capture.NewReader(&buf)
	rec, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "conn-1", rec.ConnID)
	assert.Equal(t, "inbound", rec.Direction)
	assert.Equal(t, testFrame, rec.Frame)
	assert.Empty(t, rec.Error)
	assert.True(t, testNow.Equal(rec.Time))

	rec, err = r.Next()
	require.NoError(t, err)
	assert.Equal(t, "outbound", rec.Direction)
	assert.Equal(t, "bad id", rec.Error)
}

type fakeStream struct {
	mu   sync.Mutex
	args []*redis.XAddArgs
	err  error
}

func (f *fakeStream) XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.args = append(f.args, a)
	return redis.NewStringResult("1-0", f.err)
}

func TestRedisHook(t *testing.T) {
	fake := &fakeStream{}
	h, err := NewRedisHook(context.Background(), RedisConfig{Client: fake})
	require.NoError(t, err)
	h.now = func() time.Time { return testNow }
	assert.Equal(t, "redis", h.ID())

	ctx := context.Background()
	h.OnPacket(ctx, testConn, tap.Inbound, packet.NewPublish("a/b", []byte("hi"), false), testFrame)
	h.OnDecodeError(ctx, testConn, tap.Outbound, nil, decodeErr())

	require.Len(t, fake.args, 2)

	first := fake.args[0]
	assert.Equal(t, "mqttwire:frames", first.Stream)
	assert.Equal(t, int64(100000), first.MaxLen)
	assert.True(t, first.Approx)

	values, ok := first.Values.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "conn-1", values["conn_id"])
	assert.Equal(t, "inbound", values["direction"])
	assert.Equal(t, "PUBLISH", values["type"])
	assert.NotContains(t, values, "kind")

	rec, err := capture.Unmarshal(values["record"].([]byte))
	require.NoError(t, err)
	assert.Equal(t, testFrame, rec.Frame)
	assert.True(t, testNow.Equal(rec.Time))

	values = fake.args[1].Values.(map[string]any)
	assert.Equal(t, "outbound", values["direction"])
	assert.Equal(t, "PUBLISH", values["type"])
	assert.Equal(t, "truncated", values["kind"])

	assert.NoError(t, h.Close())
}

func TestRedisHookWriteFailure(t *testing.T) {
	var buf bytes.Buffer
	fake := &fakeStream{err: errors.New("READONLY")}
	h, err := NewRedisHook(context.Background(), RedisConfig{
		Client: fake,
		Stream: "frames",
		MaxLen: 10,
		Logger: slog.New(slog.NewTextHandler(&buf, nil)),
	})
	require.NoError(t, err)

	h.OnPacket(context.Background(), testConn, tap.Inbound, &packet.Pingreq{}, []byte{0xC0, 0x00})

	require.Len(t, fake.args, 1)
	assert.Equal(t, "frames", fake.args[0].Stream)
	assert.Equal(t, int64(10), fake.args[0].MaxLen)
	assert.Contains(t, buf.String(), "redis xadd failed")
	assert.Contains(t, buf.String(), "READONLY")
}

func TestRedisHookPingFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := NewRedisHook(ctx, RedisConfig{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}
