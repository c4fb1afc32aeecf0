package grpc

import (
	"context"

	"github.com/KOMKZ/go-yogan-admission/logger"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// TraceIDMetadataKey gRPC metadata key carrying the trace id
const TraceIDMetadataKey = "x-trace-id"

// UnaryServerTraceInterceptor stores a trace id in the context for the logger.
// An OpenTelemetry span (installed by the otelgrpc stats handler) wins; otherwise
// the incoming x-trace-id is reused or a new one generated.
func UnaryServerTraceInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler) (interface{}, error) {
		return handler(withTraceID(ctx), req)
	}
}

// StreamServerTraceInterceptor stream counterpart of UnaryServerTraceInterceptor
func StreamServerTraceInterceptor() grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		return handler(srv, &contextStream{ServerStream: ss, ctx: withTraceID(ss.Context())})
	}
}

func withTraceID(ctx context.Context) context.Context {
	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		return ctx
	}

	traceID := firstMetadata(ctx, TraceIDMetadataKey)
	if traceID == "" {
		traceID = uuid.NewString()
	}
	return context.WithValue(ctx, logger.TraceIDKey{}, traceID)
}

// firstMetadata first incoming value of key, empty if absent
func firstMetadata(ctx context.Context, key string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if values := md.Get(key); len(values) > 0 {
		return values[0]
	}
	return ""
}

// contextStream overrides the context of a server stream
type contextStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *contextStream) Context() context.Context {
	return s.ctx
}
