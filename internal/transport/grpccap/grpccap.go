// Package grpccap carries capability negotiation over gRPC metadata.
//
// Server interceptors negotiate each call and attach the result to the
// handler context; client interceptors advertise the local set on each
// outgoing call.
package grpccap

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/mordonez-me/capibara/internal/negotiate"
)

// mdCarrier adapts gRPC metadata to negotiate.Carrier. Repeated values are
// joined with commas.
type mdCarrier metadata.MD

func (c mdCarrier) Get(key string) string {
	return strings.Join(metadata.MD(c).Get(key), ",")
}

func (c mdCarrier) Set(key, value string) {
	metadata.MD(c).Set(key, value)
}

func negotiateContext(ctx context.Context, e *negotiate.Engine) context.Context {
	md, _ := metadata.FromIncomingContext(ctx)
	n := e.Negotiate(mdCarrier(md))
	return negotiate.WithResult(ctx, n.Result)
}

// UnaryServerInterceptor negotiates every unary call against e.
func UnaryServerInterceptor(e *negotiate.Engine) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		return handler(negotiateContext(ctx, e), req)
	}
}

// StreamServerInterceptor negotiates every stream against e.
func StreamServerInterceptor(e *negotiate.Engine) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, _ *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		return handler(srv, &negotiatedStream{
			ServerStream: ss,
			ctx:          negotiateContext(ss.Context(), e),
		})
	}
}

type negotiatedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *negotiatedStream) Context() context.Context {
	return s.ctx
}

func outgoing(ctx context.Context, a *negotiate.Advertiser) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	a.Inject(mdCarrier(md))
	return metadata.NewOutgoingContext(ctx, md)
}

// UnaryClientInterceptor advertises a on every unary call.
func UnaryClientInterceptor(a *negotiate.Advertiser) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		return invoker(outgoing(ctx, a), method, req, reply, cc, opts...)
	}
}

// StreamClientInterceptor advertises a on every stream.
func StreamClientInterceptor(a *negotiate.Advertiser) grpc.StreamClientInterceptor {
	return func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, streamer grpc.Streamer, opts ...grpc.CallOption) (grpc.ClientStream, error) {
		return streamer(outgoing(ctx, a), desc, cc, method, opts...)
	}
}
