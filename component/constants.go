package component

// Component name constants
const (
	ComponentConfig     = "config"
	ComponentLogger     = "logger"
	ComponentRedis      = "redis"
	ComponentGRPC       = "grpc"
	ComponentHTTPServer = "http_server"
	ComponentKafka      = "kafka"
	ComponentLimiter    = "limiter"   // 🎯 admission control
	ComponentTelemetry  = "telemetry" // 🎯 metrics and tracing
)
