package main

import (
	"fmt"

	"github.com/KOMKZ/go-yogan-admission/application"
	"github.com/KOMKZ/go-yogan-admission/grpc"
	"github.com/KOMKZ/go-yogan-admission/health"
	"github.com/KOMKZ/go-yogan-admission/jwt"
	"github.com/KOMKZ/go-yogan-admission/kafka"
	"github.com/KOMKZ/go-yogan-admission/limiter"
	"github.com/KOMKZ/go-yogan-admission/middleware"
	"github.com/KOMKZ/go-yogan-admission/redis"
	"github.com/KOMKZ/go-yogan-admission/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	grpclib "google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// kafkaSinkWorkers async publishers per process
const kafkaSinkWorkers = 4

// demo the assembled application and the pieces the routes need
type demo struct {
	app        *application.Application
	limiter    *limiter.Component
	prometheus *prometheus.Registry
}

// newDemo registers every component and wires their late-bound collaborators.
//
// Layers: config, logger, then redis, kafka, telemetry; the limiter waits for
// redis and kafka so its sinks can use them; grpc and health come last.
func newDemo(opts application.Options) (*demo, error) {
	app, err := application.New(opts)
	if err != nil {
		return nil, err
	}
	// HTTP and gRPC verify bearer tokens with the same manager
	tokens, err := loadTokenManager(app)
	if err != nil {
		return nil, err
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	promMetrics := limiter.NewPrometheusMetrics("admission")
	promMetrics.MustRegister(promRegistry)
	httpMetrics := middleware.NewHTTPMetrics("admission")
	httpMetrics.MustRegister(promRegistry)
	grpcMetrics := grpc.NewGRPCMetrics("admission")
	grpcMetrics.MustRegister(promRegistry)
	otelMetrics := limiter.NewOTelMetrics(limiter.MetricsConfig{Enabled: true, RecordAvailable: true})

	redisComp := redis.NewComponent()
	kafkaComp := kafka.NewComponent()

	telemetryComp := telemetry.NewComponent()
	telemetryComp.AddMetricsProvider(otelMetrics)

	limiterComp := limiter.NewComponent(
		limiter.WithMetricsRecorder(promMetrics),
		limiter.WithMetricsRecorder(otelMetrics),
	)
	limiterComp.AddSinkFactory(limiter.RedisStatsFactory(func() goredis.UniversalClient {
		return redisComp.GetClient()
	}))
	limiterComp.AddSinkFactory(kafkaComp.SinkFactory(kafkaSinkWorkers))

	grpcComp := grpc.NewComponent()
	grpcComp.SetLimiterComponent(limiterComp)
	grpcComp.SetTokenManager(tokens)
	grpcComp.SetMetrics(grpcMetrics)
	// the global provider delegates to the SDK provider once telemetry installs it
	grpcComp.SetTracerProvider(otel.GetTracerProvider())
	grpcComp.RegisterService(func(s *grpclib.Server) {
		healthpb.RegisterHealthServer(s, grpchealth.NewServer())
	})

	healthComp := health.NewComponent()
	healthComp.SetMetadata("version", opts.Version)
	healthComp.AddProvider(limiterComp)
	healthComp.AddProvider(redisComp)

	if err := app.Register(redisComp, kafkaComp, telemetryComp, limiterComp, grpcComp, healthComp); err != nil {
		return nil, fmt.Errorf("register components: %w", err)
	}

	d := &demo{
		app:        app,
		limiter:    limiterComp,
		prometheus: promRegistry,
	}
	app.OnSetup(func(a *application.Application) error {
		registerRoutes(a.GetEngine(), routeDeps{
			manager:    limiterComp.GetManager(),
			tokens:     tokens,
			prometheus: promRegistry,
			metrics:    httpMetrics,
		})
		return nil
	})
	return d, nil
}

// loadTokenManager builds the verifier from the "jwt" section, nil when disabled
func loadTokenManager(a *application.Application) (jwt.TokenManager, error) {
	loader := a.GetConfigLoader()
	if !loader.IsSet("jwt") {
		return nil, nil
	}
	var cfg jwt.Config
	if err := loader.Unmarshal("jwt", &cfg); err != nil {
		return nil, fmt.Errorf("read jwt config: %w", err)
	}
	if !cfg.Enabled {
		return nil, nil
	}
	return jwt.NewTokenManager(cfg, nil)
}
