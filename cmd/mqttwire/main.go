// Command mqttwire accepts MQTT connections over TCP, TLS and WebSocket,
// decodes every packet, and optionally relays the traffic to an upstream
// server. Decoded traffic feeds logs, Prometheus metrics, a capture file and a
// Redis stream. The codec is also served over gRPC.
package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/bromq-dev/mqttwire/pkg/capture"
	"github.com/bromq-dev/mqttwire/pkg/hooks"
	"github.com/bromq-dev/mqttwire/pkg/listeners"
	"github.com/bromq-dev/mqttwire/pkg/packet"
	"github.com/bromq-dev/mqttwire/pkg/rpc"
	"github.com/bromq-dev/mqttwire/pkg/tap"
)

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "mqttwire: %v\n", err)
		os.Exit(2)
	}

	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("mqttwire stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("mqttwire stopped")
}

func run(ctx context.Context, cfg *Config, logger *slog.Logger) error {
	opts := packet.DecodeOptions{
		AllowNonMinimalLength: cfg.AllowNonMinimal,
		MaxPacketSize:         cfg.MaxPacketSize,
	}
	if cfg.Strict {
		opts.ValidateUTF8 = true
		opts.ValidateTopics = true
	}

	t := tap.New(&tap.Config{
		Upstream:      cfg.Upstream,
		DialTimeout:   cfg.DialTimeout,
		DecodeOptions: opts,
		MaxPacketSize: cfg.MaxPacketSize,
		Logger:        logger,
	})

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	t.AddHook(hooks.NewLoggerHook(hooks.LoggerConfig{Logger: logger}))
	t.AddHook(hooks.NewMetricsHook(hooks.MetricsConfig{Registerer: reg}))

	if cfg.CaptureFile != "" {
		f, err := os.OpenFile(cfg.CaptureFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open capture file: %w", err)
		}
		defer f.Close()
		t.AddHook(hooks.NewCaptureHook(hooks.CaptureConfig{
			Writer: capture.NewWriter(f),
			Logger: logger,
		}))
		logger.Info("capturing frames", "file", cfg.CaptureFile)
	}

	if cfg.RedisAddr != "" {
		rh, err := hooks.NewRedisHook(ctx, hooks.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Stream:   cfg.RedisStream,
			MaxLen:   cfg.RedisMaxLen,
			Logger:   logger,
		})
		if err != nil {
			return err
		}
		defer rh.Close()
		t.AddHook(rh)
	}

	lns, err := buildListeners(cfg, logger)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	for _, l := range lns {
		l := l // per-iteration copy; go directive is 1.21 (pre-loopvar semantics)
		if err := l.Listen(); err != nil {
			return fmt.Errorf("listener %s: %w", l.ID(), err)
		}
		logger.Info("listening", "listener", l.ID(), "addr", l.Addr().String())
		g.Go(func() error {
			return l.Serve(ctx, t)
		})
	}

	if cfg.RPCAddr != "" {
		srv := rpc.NewServer(&rpc.Config{ListenAddr: cfg.RPCAddr, Logger: logger})
		g.Go(func() error {
			return srv.Serve(ctx)
		})
	}

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		if cfg.Pprof {
			mux.HandleFunc("/debug/pprof/", pprof.Index)
			mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
			mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
			mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
			mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
		}
		hs := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			logger.Info("metrics server listening", "addr", cfg.MetricsAddr)
			if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			return hs.Shutdown(shutdownCtx)
		})
	}

	<-ctx.Done()
	logger.Info("shutting down", "active_connections", t.Active())

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()
	select {
	case err := <-done:
		return err
	case <-time.After(cfg.ShutdownTimeout):
		return errors.New("shutdown timed out")
	}
}

func buildListeners(cfg *Config, logger *slog.Logger) ([]listeners.Listener, error) {
	var lns []listeners.Listener

	if cfg.MQTTAddr != "" {
		lns = append(lns, listeners.NewTCP("tcp", cfg.MQTTAddr, &listeners.TCPConfig{Logger: logger}))
	}

	if cfg.TLSAddr != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load TLS certificate: %w", err)
		}
		lns = append(lns, listeners.NewTCP("tcp+tls", cfg.TLSAddr, &listeners.TCPConfig{
			TLSConfig: &tls.Config{
				Certificates: []tls.Certificate{cert},
				MinVersion:   tls.VersionTLS12,
			},
			Logger: logger,
		}))
	}

	if cfg.WSAddr != "" {
		lns = append(lns, listeners.NewWebSocket("ws", cfg.WSAddr, &listeners.WebSocketConfig{
			Path:   cfg.WSPath,
			Logger: logger,
		}))
	}

	if len(lns) == 0 {
		return nil, errors.New("no listeners configured")
	}
	return lns, nil
}
