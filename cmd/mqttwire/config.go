package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds the daemon configuration. Environment variables (optionally
// from a .env file) set the defaults; command-line flags override them.
// An empty address disables that component.
type Config struct {
	// Listeners
	MQTTAddr string `env:"MQTTWIRE_MQTT_ADDR" envDefault:":1883"`
	TLSAddr  string `env:"MQTTWIRE_TLS_ADDR"`
	CertFile string `env:"MQTTWIRE_TLS_CERT"`
	KeyFile  string `env:"MQTTWIRE_TLS_KEY"`
	WSAddr   string `env:"MQTTWIRE_WS_ADDR" envDefault:":8083"`
	WSPath   string `env:"MQTTWIRE_WS_PATH" envDefault:"/mqtt"`

	// Relay
	Upstream    string        `env:"MQTTWIRE_UPSTREAM"`
	DialTimeout time.Duration `env:"MQTTWIRE_DIAL_TIMEOUT" envDefault:"10s"`

	// Decoding
	Strict          bool `env:"MQTTWIRE_STRICT"`
	AllowNonMinimal bool `env:"MQTTWIRE_ALLOW_NON_MINIMAL_LENGTH"`
	MaxPacketSize   int  `env:"MQTTWIRE_MAX_PACKET_SIZE"`

	// Sinks
	CaptureFile   string `env:"MQTTWIRE_CAPTURE_FILE"`
	RedisAddr     string `env:"MQTTWIRE_REDIS_ADDR"`
	RedisPassword string `env:"MQTTWIRE_REDIS_PASSWORD"`
	RedisDB       int    `env:"MQTTWIRE_REDIS_DB"`
	RedisStream   string `env:"MQTTWIRE_REDIS_STREAM" envDefault:"mqttwire:frames"`
	RedisMaxLen   int64  `env:"MQTTWIRE_REDIS_MAXLEN" envDefault:"100000"`

	// Services
	RPCAddr     string `env:"MQTTWIRE_RPC_ADDR" envDefault:":7950"`
	MetricsAddr string `env:"MQTTWIRE_METRICS_ADDR" envDefault:":9090"`
	Pprof       bool   `env:"MQTTWIRE_PPROF"`

	// Observability
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	ShutdownTimeout time.Duration `env:"MQTTWIRE_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// loadConfig reads .env (if present), the environment, then args.
func loadConfig(args []string) (*Config, error) {
	// .env file is optional, but a broken one is an error.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	fs := flag.NewFlagSet("mqttwire", flag.ContinueOnError)
	fs.StringVar(&cfg.MQTTAddr, "addr", cfg.MQTTAddr, "MQTT listen address")
	fs.StringVar(&cfg.TLSAddr, "tls-addr", cfg.TLSAddr, "MQTTS listen address (needs -cert and -key)")
	fs.StringVar(&cfg.CertFile, "cert", cfg.CertFile, "TLS certificate file")
	fs.StringVar(&cfg.KeyFile, "key", cfg.KeyFile, "TLS private key file")
	fs.StringVar(&cfg.WSAddr, "ws-addr", cfg.WSAddr, "WebSocket listen address")
	fs.StringVar(&cfg.WSPath, "ws-path", cfg.WSPath, "WebSocket listen path")
	fs.StringVar(&cfg.Upstream, "upstream", cfg.Upstream, "MQTT server to relay to (empty: tap only)")
	fs.BoolVar(&cfg.Strict, "strict", cfg.Strict, "validate UTF-8 strings and topics")
	fs.BoolVar(&cfg.AllowNonMinimal, "allow-non-minimal-length", cfg.AllowNonMinimal, "accept over-long remaining length encodings")
	fs.IntVar(&cfg.MaxPacketSize, "max-packet-size", cfg.MaxPacketSize, "largest accepted packet in bytes (0: protocol maximum)")
	fs.StringVar(&cfg.CaptureFile, "capture", cfg.CaptureFile, "append every frame to this capture file")
	fs.StringVar(&cfg.RedisAddr, "redis", cfg.RedisAddr, "Redis address for the frame stream")
	fs.StringVar(&cfg.RedisStream, "redis-stream", cfg.RedisStream, "Redis stream key")
	fs.StringVar(&cfg.RPCAddr, "rpc-addr", cfg.RPCAddr, "codec gRPC service address")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Prometheus /metrics address")
	fs.BoolVar(&cfg.Pprof, "pprof", cfg.Pprof, "serve /debug/pprof on the metrics address")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "json or text")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if cfg.TLSAddr != "" && (cfg.CertFile == "" || cfg.KeyFile == "") {
		return nil, fmt.Errorf("tls listener %s needs both -cert and -key", cfg.TLSAddr)
	}
	if cfg.MaxPacketSize < 0 {
		return nil, fmt.Errorf("max packet size %d is negative", cfg.MaxPacketSize)
	}
	return cfg, nil
}

// setupLogger creates a structured logger with the specified level and format.
func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
