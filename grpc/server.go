package grpc

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/KOMKZ/go-yogan-admission/jwt"
	"github.com/KOMKZ/go-yogan-admission/limiter"
	"github.com/KOMKZ/go-yogan-admission/logger"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/stats"
)

// Server gRPC server wrapper
type Server struct {
	config            ServerConfig
	server            *grpc.Server
	logger            *logger.CtxZapLogger
	Port              int // actual listen port, known after Start
	statsHandlers     []stats.Handler
	unaryInterceptors []grpc.UnaryServerInterceptor
	streamInterceptor []grpc.StreamServerInterceptor
	serverOpts        []grpc.ServerOption
	listener          net.Listener
	done              chan struct{}
}

// NewServer creates a server with the default interceptor chains.
// A nil manager leaves admission out of the chain; a nil token manager leaves
// every caller anonymous unless trusted_user_metadata is set.
func NewServer(cfg ServerConfig, log *logger.CtxZapLogger, manager *limiter.Manager, tokens jwt.TokenManager) *Server {
	cfg.ApplyDefaults()
	enableLog := cfg.IsLogEnabled()
	admission := AdmissionOptions{
		Policy:              cfg.Policy,
		Tokens:              tokens,
		TrustedUserMetadata: cfg.TrustedUserMetadata,
	}

	unary := []grpc.UnaryServerInterceptor{
		UnaryServerTraceInterceptor(),
		UnaryLoggerInterceptor(log, enableLog),
		UnaryRecoveryInterceptor(log),
	}
	stream := []grpc.StreamServerInterceptor{
		StreamServerTraceInterceptor(),
		StreamLoggerInterceptor(log, enableLog),
		StreamRecoveryInterceptor(log),
	}
	if manager != nil {
		unary = append(unary, UnaryAdmissionInterceptor(manager, admission))
		stream = append(stream, StreamAdmissionInterceptor(manager, admission))
	}

	return NewServerWithInterceptors(cfg, log, unary, stream)
}

// NewServerWithInterceptors creates a server with custom interceptor chains.
// The grpc.Server is built lazily so a stats handler can still be injected.
func NewServerWithInterceptors(
	cfg ServerConfig,
	log *logger.CtxZapLogger,
	unary []grpc.UnaryServerInterceptor,
	stream []grpc.StreamServerInterceptor,
) *Server {
	cfg.ApplyDefaults()
	return &Server{
		config:            cfg,
		logger:            log,
		Port:              cfg.Port,
		unaryInterceptors: unary,
		streamInterceptor: stream,
		serverOpts: []grpc.ServerOption{
			grpc.MaxRecvMsgSize(cfg.MaxRecvSize * 1024 * 1024),
			grpc.MaxSendMsgSize(cfg.MaxSendSize * 1024 * 1024),
		},
	}
}

// Start listens on the configured port and serves in the background
func (s *Server) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.Port))
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", s.config.Port, err)
	}
	s.Port = lis.Addr().(*net.TCPAddr).Port
	return s.Serve(ctx, lis)
}

// Serve serves on an existing listener in the background
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	srv := s.GetGRPCServer()
	s.listener = lis
	s.done = make(chan struct{})

	s.logger.DebugCtx(ctx, "🚀 gRPC server started", zap.String("addr", lis.Addr().String()))
	go func() {
		defer close(s.done)
		if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			s.logger.ErrorCtx(ctx, "gRPC server exited abnormally", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) buildGRPCServer() {
	opts := make([]grpc.ServerOption, 0, len(s.serverOpts)+len(s.statsHandlers)+2)

	// stats handlers must see the call before any interceptor
	for _, h := range s.statsHandlers {
		opts = append(opts, grpc.StatsHandler(h))
	}
	if len(s.unaryInterceptors) > 0 {
		opts = append(opts, grpc.ChainUnaryInterceptor(s.unaryInterceptors...))
	}
	if len(s.streamInterceptor) > 0 {
		opts = append(opts, grpc.ChainStreamInterceptor(s.streamInterceptor...))
	}
	opts = append(opts, s.serverOpts...)

	s.server = grpc.NewServer(opts...)
	if s.config.EnableReflect {
		reflection.Register(s.server)
	}
}

// Stop drains in-flight calls, forcing a stop when ctx ends first
func (s *Server) Stop(ctx context.Context) {
	if s.server == nil {
		return
	}
	s.logger.DebugCtx(ctx, "⏹️  Stopping gRPC server...")

	stopped := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-ctx.Done():
		s.server.Stop()
		<-stopped
	}
	if s.done != nil {
		<-s.done
	}
}

// GetGRPCServer underlying server for registering services, built on first use
func (s *Server) GetGRPCServer() *grpc.Server {
	if s.server == nil {
		s.buildGRPCServer()
	}
	return s.server
}

// SetTracerProvider installs the otelgrpc stats handler; call before registering services
func (s *Server) SetTracerProvider(tp trace.TracerProvider) {
	if tp == nil {
		return
	}
	s.statsHandlers = append(s.statsHandlers, otelgrpc.NewServerHandler(otelgrpc.WithTracerProvider(tp)))
	s.logger.DebugCtx(context.Background(), "✅ TracerProvider injected into gRPC server")
}

// AddStatsHandler installs another stats handler; call before registering services
func (s *Server) AddStatsHandler(h stats.Handler) {
	if h != nil {
		s.statsHandlers = append(s.statsHandlers, h)
	}
}
