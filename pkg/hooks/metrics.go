package hooks

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bromq-dev/mqttwire/pkg/packet"
	"github.com/bromq-dev/mqttwire/pkg/tap"
)

// MetricsConfig configures the metrics hook.
type MetricsConfig struct {
	// Registerer receives the collectors (default: prometheus.DefaultRegisterer).
	Registerer prometheus.Registerer

	// Namespace prefixes every metric name (default: "mqttwire").
	Namespace string
}

// MetricsHook counts tapped packets and decode failures.
type MetricsHook struct {
	packets      *prometheus.CounterVec
	decodeErrors *prometheus.CounterVec
	packetSize   *prometheus.HistogramVec
	connections  prometheus.Gauge
	connTotal    prometheus.Counter
}

// NewMetricsHook creates the collectors and registers them.
// It panics if they are already registered on cfg.Registerer.
func NewMetricsHook(cfg MetricsConfig) *MetricsHook {
	if cfg.Registerer == nil {
		cfg.Registerer = prometheus.DefaultRegisterer
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "mqttwire"
	}
	factory := promauto.With(cfg.Registerer)

	return &MetricsHook{
		packets: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "packets_total",
				Help:      "Total number of decoded MQTT packets",
			},
			[]string{"type", "direction"},
		),
		decodeErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "decode_errors_total",
				Help:      "Total number of packets that failed to decode",
			},
			[]string{"kind", "direction"},
		),
		packetSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "packet_size_bytes",
				Help:      "Encoded size of decoded MQTT packets",
				Buckets:   prometheus.ExponentialBuckets(2, 4, 10),
			},
			[]string{"type"},
		),
		connections: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Name:      "connections_active",
				Help:      "Number of currently tapped connections",
			},
		),
		connTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "connections_total",
				Help:      "Total number of tapped connections",
			},
		),
	}
}

func (h *MetricsHook) ID() string { return "metrics" }

func (h *MetricsHook) OnConnect(ctx context.Context, conn tap.ConnInfo) {
	h.connections.Inc()
	h.connTotal.Inc()
}

func (h *MetricsHook) OnDisconnect(ctx context.Context, conn tap.ConnInfo, err error) {
	h.connections.Dec()
}

func (h *MetricsHook) OnPacket(ctx context.Context, conn tap.ConnInfo, dir tap.Direction, pkt packet.Packet, frame []byte) {
	t := pkt.Type().String()
	h.packets.WithLabelValues(t, dir.String()).Inc()
	h.packetSize.WithLabelValues(t).Observe(float64(len(frame)))
}

func (h *MetricsHook) OnDecodeError(ctx context.Context, conn tap.ConnInfo, dir tap.Direction, frame []byte, err error) {
	h.decodeErrors.WithLabelValues(packet.Kind(err), dir.String()).Inc()
}
