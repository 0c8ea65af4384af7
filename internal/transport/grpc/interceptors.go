package grpc

import (
	"context"
	"log/slog"
	"runtime/debug"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

const DefaultRequestTimeout = 10 * time.Second

// DefaultRequestTimeoutInterceptor bounds calls that arrive without a deadline.
func DefaultRequestTimeoutInterceptor(timeout time.Duration) grpc.UnaryServerInterceptor {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if _, ok := ctx.Deadline(); ok {
			return handler(ctx, req)
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		return handler(ctx, req)
	}
}

// RecoveryInterceptor turns a handler panic into an Internal status.
func RecoveryInterceptor(log *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				log.ErrorContext(ctx, "grpc handler panic",
					slog.String("method", info.FullMethod),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())),
				)
				err = status.Error(codes.Internal, "internal error")
			}
		}()
		return handler(ctx, req)
	}
}

// NewServer builds a gRPC server with the appointments service and the
// standard health service registered.
func NewServer(srv AppointmentsServiceServer, requestTimeout time.Duration, log *slog.Logger, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	if log == nil {
		log = slog.Default()
	}
	opts = append([]grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			RecoveryInterceptor(log),
			DefaultRequestTimeoutInterceptor(requestTimeout),
		),
	}, opts...)

	s := grpc.NewServer(opts...)
	RegisterAppointmentsServiceServer(s, srv)

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)
	return s, hs
}
