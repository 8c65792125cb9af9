package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	serviceName    = "mqttwire.CodecService"
	decodeFullName = "/" + serviceName + "/Decode"
	encodeFullName = "/" + serviceName + "/Encode"
)

// CodecServiceClient is the client API for CodecService.
type CodecServiceClient interface {
	Decode(ctx context.Context, in *DecodeRequest, opts ...grpc.CallOption) (*DecodeResponse, error)
	Encode(ctx context.Context, in *EncodeRequest, opts ...grpc.CallOption) (*EncodeResponse, error)
}

type codecServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewCodecServiceClient creates a new CodecServiceClient.
// Every call is forced onto the msgpack codec.
func NewCodecServiceClient(cc grpc.ClientConnInterface) CodecServiceClient {
	return &codecServiceClient{cc}
}

func (c *codecServiceClient) Decode(ctx context.Context, in *DecodeRequest, opts ...grpc.CallOption) (*DecodeResponse, error) {
	out := new(DecodeResponse)
	opts = append([]grpc.CallOption{grpc.ForceCodec(Codec{})}, opts...)
	if err := c.cc.Invoke(ctx, decodeFullName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *codecServiceClient) Encode(ctx context.Context, in *EncodeRequest, opts ...grpc.CallOption) (*EncodeResponse, error) {
	out := new(EncodeResponse)
	opts = append([]grpc.CallOption{grpc.ForceCodec(Codec{})}, opts...)
	if err := c.cc.Invoke(ctx, encodeFullName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// CodecServiceServer is the server API for CodecService.
type CodecServiceServer interface {
	Decode(context.Context, *DecodeRequest) (*DecodeResponse, error)
	Encode(context.Context, *EncodeRequest) (*EncodeResponse, error)
}

// UnimplementedCodecServiceServer can be embedded for forward compatibility.
type UnimplementedCodecServiceServer struct{}

func (UnimplementedCodecServiceServer) Decode(context.Context, *DecodeRequest) (*DecodeResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Decode not implemented")
}

func (UnimplementedCodecServiceServer) Encode(context.Context, *EncodeRequest) (*EncodeResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Encode not implemented")
}

// RegisterCodecServiceServer registers the server.
func RegisterCodecServiceServer(s grpc.ServiceRegistrar, srv CodecServiceServer) {
	s.RegisterService(&_CodecService_serviceDesc, srv)
}

var _CodecService_serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*CodecServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Decode",
			Handler:    _CodecService_Decode_Handler,
		},
		{
			MethodName: "Encode",
			Handler:    _CodecService_Encode_Handler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "codec.msgpack",
}

func _CodecService_Decode_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(DecodeRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CodecServiceServer).Decode(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: decodeFullName,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(CodecServiceServer).Decode(ctx, req.(*DecodeRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _CodecService_Encode_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(EncodeRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CodecServiceServer).Encode(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: encodeFullName,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(CodecServiceServer).Encode(ctx, req.(*EncodeRequest))
	}
	return interceptor(ctx, in, info, handler)
}
