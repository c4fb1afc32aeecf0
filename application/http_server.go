package application

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/KOMKZ/go-yogan-admission/httpx"
	"github.com/KOMKZ/go-yogan-admission/logger"
	"github.com/KOMKZ/go-yogan-admission/middleware"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

// HTTPServer gin engine plus its http.Server
type HTTPServer struct {
	engine     *gin.Engine
	httpServer *http.Server
	listener   net.Listener
	cfg        ApiServerConfig
	logger     *logger.CtxZapLogger
}

// ServerOption configures the server
type ServerOption func(*serverOptions)

type serverOptions struct {
	serviceName string
}

// WithTracing adds the otelgin span middleware under serviceName
func WithTracing(serviceName string) ServerOption {
	return func(o *serverOptions) {
		o.serviceName = serviceName
	}
}

// NewHTTPServer builds the engine and installs the global middleware.
//
// Order: otelgin span, trace id, access log, error logging, recovery.
// Admission middleware is attached per route group by the caller.
func NewHTTPServer(cfg AppConfig, opts ...ServerOption) *HTTPServer {
	var o serverOptions
	for _, opt := range opts {
		opt(&o)
	}

	gin.DefaultWriter = logger.NewGinLogWriter("yogan")
	gin.DefaultErrorWriter = logger.NewGinLogWriter("yogan")
	gin.SetMode(cfg.ApiServer.Mode)

	engine := gin.New()
	engine.HandleMethodNotAllowed = true

	ctxLogger := logger.GetLogger("yogan")

	// the span must exist before the trace id middleware reads it
	if o.serviceName != "" {
		engine.Use(otelgin.Middleware(o.serviceName))
		ctxLogger.DebugCtx(context.Background(), "✅ OpenTelemetry trace middleware registered",
			zap.String("service_name", o.serviceName))
	}

	if mw := cfg.Middleware.TraceID; mw.Enable {
		traceCfg := middleware.DefaultTraceConfig()
		traceCfg.TraceIDKey = mw.TraceIDKey
		traceCfg.TraceIDHeader = mw.TraceIDHeader
		traceCfg.EnableResponseHeader = mw.EnableResponseHeader
		engine.Use(middleware.TraceID(traceCfg))
	}

	if mw := cfg.Middleware.RequestLog; mw.Enable {
		engine.Use(middleware.RequestLogWithConfig(middleware.RequestLogConfig{
			SkipPaths: mw.SkipPaths,
		}))
	}

	if cfg.Httpx.Enable {
		engine.Use(httpx.ErrorLoggingMiddleware(cfg.Httpx))
	}

	engine.Use(middleware.Recovery())

	engine.NoRoute(httpx.NoRouteHandler())
	engine.NoMethod(httpx.NoMethodHandler())

	return &HTTPServer{
		engine: engine,
		cfg:    cfg.ApiServer,
		logger: ctxLogger,
	}
}

// GetEngine engine for route registration
func (s *HTTPServer) GetEngine() *gin.Engine {
	return s.engine
}

// Listen binds the port, so a busy port fails before anything is served
func (s *HTTPServer) Listen() error {
	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:      s.engine,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	return nil
}

// Serve blocks until Shutdown; a clean shutdown returns nil
func (s *HTTPServer) Serve() error {
	if s.listener == nil {
		return errors.New("http server is not listening")
	}
	s.logger.InfoCtx(context.Background(), "🚀 HTTP server started",
		zap.String("addr", s.listener.Addr().String()),
		zap.String("mode", s.cfg.Mode))

	if err := s.httpServer.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Addr bound address, empty before Listen
func (s *HTTPServer) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown drains in-flight requests until ctx ends
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.DebugCtx(ctx, "Shutting down HTTP server...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	// releases the port when Serve never ran
	_ = s.listener.Close()
	s.logger.DebugCtx(ctx, "✅ HTTP server closed")
	return nil
}
