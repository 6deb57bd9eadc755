package grocerv1

import (
	"context"

	"google.golang.org/grpc"
)

func fullMethod(service, method string) string {
	return "/" + service + "/" + method
}

// unaryHandler adapts a typed method to grpc's untyped handler signature.
func unaryHandler[Req any](service, method string, call func(srv any, ctx context.Context, req *Req) (any, error)) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv, ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod(service, method),
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv, ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func invoke(ctx context.Context, cc grpc.ClientConnInterface, service, method string, in, out any, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{CallOption()}, opts...)
	return cc.Invoke(ctx, fullMethod(service, method), in, out, opts...)
}
