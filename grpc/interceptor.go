package grpc

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/KOMKZ/go-yogan-admission/logger"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// UnaryLoggerInterceptor logs each unary call (can be switched off)
func UnaryLoggerInterceptor(log *logger.CtxZapLogger, enableLog bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if enableLog {
			logCall(ctx, log, info.FullMethod, time.Since(start), err)
		}
		return resp, err
	}
}

// StreamLoggerInterceptor logs each stream once it ends
func StreamLoggerInterceptor(log *logger.CtxZapLogger, enableLog bool) grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		err := handler(srv, ss)
		if enableLog {
			logCall(ss.Context(), log, info.FullMethod, time.Since(start), err)
		}
		return err
	}
}

func logCall(ctx context.Context, log *logger.CtxZapLogger, method string, duration time.Duration, err error) {
	fields := []zap.Field{
		zap.String("method", method),
		zap.Duration("duration", duration),
	}
	if err == nil {
		log.InfoCtx(ctx, "gRPC request", fields...)
		return
	}

	fields = append(fields, zap.String("code", status.Code(err).String()), zap.Error(err))
	switch status.Code(err) {
	case codes.ResourceExhausted, codes.Unavailable, codes.Canceled, codes.Unauthenticated:
		log.WarnCtx(ctx, "gRPC request", fields...)
	default:
		log.ErrorCtx(ctx, "gRPC request", fields...)
	}
}

// UnaryRecoveryInterceptor turns a handler panic into codes.Internal
func UnaryRecoveryInterceptor(log *logger.CtxZapLogger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler) (resp interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = recovered(ctx, log, info.FullMethod, r)
			}
		}()
		return handler(ctx, req)
	}
}

// StreamRecoveryInterceptor stream counterpart of UnaryRecoveryInterceptor
func StreamRecoveryInterceptor(log *logger.CtxZapLogger) grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = recovered(ss.Context(), log, info.FullMethod, r)
			}
		}()
		return handler(srv, ss)
	}
}

func recovered(ctx context.Context, log *logger.CtxZapLogger, method string, r interface{}) error {
	log.ErrorCtx(ctx, "gRPC panic recovered",
		zap.String("method", method),
		zap.Any("panic", r),
		zap.String("stack", string(debug.Stack())),
	)
	return status.Error(codes.Internal, "internal service error")
}
