// Package rpc exposes the MQTT codec as a gRPC service so non-Go programs can
// decode and encode packets. Messages travel as msgpack rather than protobuf.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/bromq-dev/mqttwire/pkg/packet"
)

// Config configures the codec service.
type Config struct {
	// ListenAddr is the address to listen on (default: ":7950").
	ListenAddr string

	// MaxPackets caps how many packets one Decode call returns (default: 1024).
	MaxPackets int

	// Logger for logging. If nil, uses slog.Default().
	Logger *slog.Logger
}

// Server implements CodecServiceServer on top of package packet.
type Server struct {
	UnimplementedCodecServiceServer

	cfg    *Config
	server *grpc.Server
	log    *slog.Logger
}

// NewServer creates a codec service.
func NewServer(cfg *Config) *Server {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":7950"
	}
	if cfg.MaxPackets == 0 {
		cfg.MaxPackets = 1024
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Server{
		cfg: cfg,
		log: cfg.Logger,
	}
}

// NewGRPCServer returns a grpc.Server that speaks the msgpack codec with the
// service registered.
func (s *Server) NewGRPCServer(opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{grpc.ForceServerCodec(Codec{})}, opts...)
	g := grpc.NewServer(opts...)
	RegisterCodecServiceServer(g, s)
	return g
}

// Serve listens on cfg.ListenAddr and serves until ctx is done.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("rpc: listen: %w", err)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener serves on ln until ctx is done, then stops gracefully.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	s.server = s.NewGRPCServer()
	stop := context.AfterFunc(ctx, s.server.GracefulStop)
	defer stop()

	s.log.Info("codec service started", "addr", ln.Addr().String())
	if err := s.server.Serve(ln); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("rpc: serve: %w", err)
	}
	return nil
}

// Decode decodes every complete packet in req.Frames.
// A truncated final packet is left unconsumed; any other codec error fails the call.
func (s *Server) Decode(ctx context.Context, req *DecodeRequest) (*DecodeResponse, error) {
	limit := s.cfg.MaxPackets
	if req.Limit > 0 && req.Limit < limit {
		limit = req.Limit
	}

	resp := &DecodeResponse{}
	buf := req.Frames
	for len(buf) > 0 && len(resp.Packets) < limit {
		p, n, err := req.Options.Decode(buf)
		if errors.Is(err, packet.ErrTruncated) && incomplete(buf, req.Options) {
			break
		}
		if err != nil {
			return nil, statusFromError(err, resp.Consumed)
		}

		env, err := Wrap(p)
		if err != nil {
			return nil, status.Error(codes.Internal, err.Error())
		}
		resp.Packets = append(resp.Packets, env)
		resp.Consumed += n
		buf = buf[n:]
	}
	return resp, nil
}

// incomplete reports whether buf ends inside the fixed header or before the end
// of the frame the header declares. A frame that is fully present but too short
// for its own body is not incomplete.
func incomplete(buf []byte, opts packet.DecodeOptions) bool {
	fh, n, err := opts.DecodeFixedHeader(buf)
	if err != nil {
		return errors.Is(err, packet.ErrTruncated)
	}
	return len(buf) < n+int(fh.RemainingLength)
}

// Encode encodes req.Packet to its wire form.
func (s *Server) Encode(ctx context.Context, req *EncodeRequest) (*EncodeResponse, error) {
	p, err := req.Packet.Packet()
	if err != nil {
		return nil, statusFromError(err, -1)
	}
	frame, err := packet.Encode(p)
	if err != nil {
		return nil, statusFromError(err, -1)
	}
	return &EncodeResponse{Frame: frame}, nil
}

// statusFromError maps codec errors to codes.InvalidArgument. The message
// starts with the error kind so clients can branch on it.
func statusFromError(err error, offset int) error {
	kind := packet.Kind(err)
	if kind == "other" {
		return status.Error(codes.Internal, err.Error())
	}
	if offset >= 0 {
		return status.Errorf(codes.InvalidArgument, "%s at offset %d: %v", kind, offset, err)
	}
	return status.Errorf(codes.InvalidArgument, "%s: %v", kind, err)
}

// ErrorKind extracts the codec error kind from a status error returned by the service.
// It returns "" when err did not come from a codec failure.
func ErrorKind(err error) string {
	st, ok := status.FromError(err)
	if !ok || st.Code() != codes.InvalidArgument {
		return ""
	}
	msg := st.Message()
	for i := 0; i < len(msg); i++ {
		if msg[i] == ':' || msg[i] == ' ' {
			return msg[:i]
		}
	}
	return msg
}

// Dial connects to a codec service at target without transport security.
func Dial(target string, opts ...grpc.DialOption) (CodecServiceClient, *grpc.ClientConn, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(Codec{})),
	}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("rpc: dial %s: %w", target, err)
	}
	return NewCodecServiceClient(conn), conn, nil
}
