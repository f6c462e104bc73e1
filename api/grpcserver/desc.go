package grpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const serviceName = "regionvac.Collector"

const (
	collectMethod  = "/" + serviceName + "/Collect"
	statsMethod    = "/" + serviceName + "/Stats"
	snapshotMethod = "/" + serviceName + "/Snapshot"
)

// CollectorServer is the server side of regionvac.Collector. Every method
// takes an empty request and answers with a Struct.
type CollectorServer interface {
	Collect(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Stats(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Snapshot(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*CollectorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Collect", Handler: unary(collectMethod, CollectorServer.Collect)},
		{MethodName: "Stats", Handler: unary(statsMethod, CollectorServer.Stats)},
		{MethodName: "Snapshot", Handler: unary(snapshotMethod, CollectorServer.Snapshot)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "regionvac/collector.proto",
}

func Register(s grpc.ServiceRegistrar, srv CollectorServer) {
	s.RegisterService(&ServiceDesc, srv)
}

type call func(CollectorServer, context.Context, *emptypb.Empty) (*structpb.Struct, error)

func unary(method string, fn call) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(emptypb.Empty)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return fn(srv.(CollectorServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return fn(srv.(CollectorServer), ctx, req.(*emptypb.Empty))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// Client calls regionvac.Collector over cc.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) Collect(ctx context.Context, opts ...grpc.CallOption) (map[string]any, error) {
	return c.invoke(ctx, collectMethod, opts)
}

func (c *Client) Stats(ctx context.Context, opts ...grpc.CallOption) (map[string]any, error) {
	return c.invoke(ctx, statsMethod, opts)
}

func (c *Client) Snapshot(ctx context.Context, opts ...grpc.CallOption) (map[string]any, error) {
	return c.invoke(ctx, snapshotMethod, opts)
}

func (c *Client) invoke(ctx context.Context, method string, opts []grpc.CallOption) (map[string]any, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}
