package health

import (
	"context"
	"net/http"
	"time"

	"github.com/KOMKZ/go-yogan-admission/component"
	"github.com/KOMKZ/go-yogan-admission/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ComponentName health component name
const ComponentName = "health"

// Config read from the "health" section
type Config struct {
	Enabled bool          `mapstructure:"enabled"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// DefaultConfig enabled with a 5s timeout
func DefaultConfig() Config {
	return Config{
		Enabled: true,
		Timeout: 5 * time.Second,
	}
}

// Component collects the health checks of other components
type Component struct {
	aggregator *Aggregator
	config     Config
	logger     *logger.CtxZapLogger
	providers  []component.HealthCheckProvider
	metadata   map[string]interface{}
}

// NewComponent creates the health component
func NewComponent() *Component {
	return &Component{
		logger:   logger.GetLogger("yogan"),
		metadata: make(map[string]interface{}),
	}
}

// Name component name
func (c *Component) Name() string {
	return ComponentName
}

// DependsOn config and logger, plus every named provider so their checkers
// exist by the time Start collects them
func (c *Component) DependsOn() []string {
	deps := []string{component.ComponentConfig, component.ComponentLogger}
	for _, p := range c.providers {
		if named, ok := p.(interface{ Name() string }); ok {
			deps = append(deps, "optional:"+named.Name())
		}
	}
	return deps
}

// Init reads the configuration, missing or invalid sections fall back to defaults
func (c *Component) Init(ctx context.Context, loader component.ConfigLoader) error {
	c.config = DefaultConfig()
	if loader.IsSet("health") {
		if err := loader.Unmarshal("health", &c.config); err != nil {
			c.logger.WarnCtx(ctx, "Failed to unmarshal health config, using default", zap.Error(err))
			c.config = DefaultConfig()
		}
	}
	if !c.config.Enabled {
		c.logger.InfoCtx(ctx, "Health check is disabled")
		return nil
	}

	c.aggregator = NewAggregator(c.config.Timeout)
	for k, v := range c.metadata {
		c.aggregator.SetMetadata(k, v)
	}
	return nil
}

// Start registers the checkers of every provider; providers are asked only now
// because most build their checker in their own Start.
func (c *Component) Start(ctx context.Context) error {
	if c.aggregator == nil {
		return nil
	}
	for _, p := range c.providers {
		if checker := p.GetHealthChecker(); checker != nil {
			c.aggregator.Register(checker)
			c.logger.DebugCtx(ctx, "Registered health checker", zap.String("name", checker.Name()))
		}
	}
	return nil
}

// Stop nothing to stop
func (c *Component) Stop(ctx context.Context) error {
	return nil
}

// AddProvider registers a component exposing a health check; call before Start
func (c *Component) AddProvider(p component.HealthCheckProvider) {
	if p != nil {
		c.providers = append(c.providers, p)
	}
}

// SetMetadata attaches a static value to every response; call before Init
func (c *Component) SetMetadata(key string, value interface{}) {
	c.metadata[key] = value
}

// IsEnabled whether health checks run
func (c *Component) IsEnabled() bool {
	return c.config.Enabled
}

// Check runs every check; a disabled component always reports healthy
func (c *Component) Check(ctx context.Context) *Response {
	if c.aggregator == nil {
		return &Response{
			Status:    StatusHealthy,
			Timestamp: time.Now(),
			Checks:    make(map[string]CheckResult),
			Metadata:  map[string]interface{}{"enabled": false},
		}
	}
	return c.aggregator.Check(ctx)
}

// Handler serves the aggregated health, 503 when unhealthy
func (c *Component) Handler() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		resp := c.Check(ctx.Request.Context())
		status := http.StatusOK
		if resp.Status == StatusUnhealthy {
			status = http.StatusServiceUnavailable
		}
		ctx.JSON(status, resp)
	}
}
