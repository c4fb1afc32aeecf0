// Package application assembles components into a runnable HTTP service.
//
// The config and logger components are registered up front; callers add the
// rest, attach routes in OnSetup, then Run until the context ends.
package application

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/KOMKZ/go-yogan-admission/component"
	"github.com/KOMKZ/go-yogan-admission/config"
	"github.com/KOMKZ/go-yogan-admission/health"
	"github.com/KOMKZ/go-yogan-admission/logger"
	"github.com/KOMKZ/go-yogan-admission/registry"
	"github.com/KOMKZ/go-yogan-admission/telemetry"
	"github.com/gin-gonic/gin"
	"github.com/samber/do/v2"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// AppState application lifecycle state
type AppState int

const (
	StateInit AppState = iota
	StateSetup
	StateRunning
	StateStopping
	StateStopped
)

func (s AppState) String() string {
	switch s {
	case StateInit:
		return "Init"
	case StateSetup:
		return "Setup"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// Options for New
type Options struct {
	ConfigPath   string            // configuration directory (default "configs")
	ConfigPrefix string            // environment variable prefix
	Flags        *pflag.FlagSet    // optional command line flags
	FlagBindings map[string]string // flag name -> config key
	Loader       *config.Loader    // prebuilt loader, wins over the fields above
	Version      string
}

// Application component registry, DI container and HTTP server
type Application struct {
	injector   *do.RootScope
	registry   *registry.Registry
	configComp *ConfigComponent
	appConfig  AppConfig
	server     *HTTPServer
	logger     *logger.CtxZapLogger
	version    string

	mu    sync.RWMutex
	state AppState

	stopOnce sync.Once
	stopErr  error

	onSetup    func(*Application) error
	onReady    func(*Application) error
	onShutdown func(context.Context) error
}

// New builds the config loader through the injector and registers the core components
func New(opts Options) (*Application, error) {
	injector := do.New()
	if opts.Loader != nil {
		do.Provide(injector, config.ProvideLoaderValue(opts.Loader))
	} else {
		do.Provide(injector, config.ProvideLoader(config.ProvideLoaderOptions{
			ConfigPath:   opts.ConfigPath,
			ConfigPrefix: opts.ConfigPrefix,
			Flags:        opts.Flags,
			FlagBindings: opts.FlagBindings,
		}))
	}

	loader, err := do.Invoke[*config.Loader](injector)
	if err != nil {
		return nil, fmt.Errorf("build config loader: %w", err)
	}

	a := &Application{
		injector:   injector,
		registry:   registry.NewRegistry(nil),
		configComp: NewConfigComponent(loader),
		appConfig:  DefaultAppConfig(),
		logger:     logger.GetLogger("yogan"),
		version:    opts.Version,
		state:      StateInit,
	}
	do.ProvideValue(injector, a.registry)
	if err := a.Register(a.configComp, NewLoggerComponent()); err != nil {
		return nil, err
	}
	return a, nil
}

// Register adds components to the lifecycle and exposes each by name in the injector
func (a *Application) Register(comps ...component.Component) error {
	for _, c := range comps {
		if err := a.registry.Register(c); err != nil {
			return err
		}
		do.ProvideNamedValue(a.injector, c.Name(), c)
	}
	return nil
}

// Lookup resolves a registered component by name through the injector
func Lookup[T component.Component](a *Application, name string) (T, error) {
	var zero T
	c, err := do.InvokeNamed[component.Component](a.injector, name)
	if err != nil {
		return zero, fmt.Errorf("component %q: %w", name, err)
	}
	typed, ok := c.(T)
	if !ok {
		return zero, fmt.Errorf("component %q has type %T", name, c)
	}
	return typed, nil
}

// OnSetup runs after every component started; register routes here
func (a *Application) OnSetup(fn func(*Application) error) *Application {
	a.onSetup = fn
	return a
}

// OnReady runs once the HTTP port is bound
func (a *Application) OnReady(fn func(*Application) error) *Application {
	a.onReady = fn
	return a
}

// OnShutdown runs after the HTTP server drained and before components stop
func (a *Application) OnShutdown(fn func(context.Context) error) *Application {
	a.onShutdown = fn
	return a
}

// Setup initializes and starts every component, then builds the HTTP server
func (a *Application) Setup(ctx context.Context) error {
	a.setState(StateSetup)

	if err := a.registry.Init(ctx, a.configComp); err != nil {
		return fmt.Errorf("init components: %w", err)
	}
	// the logger component may have reconfigured the manager
	a.logger = logger.GetLogger("yogan")

	cfg, err := LoadAppConfig(a.configComp)
	if err != nil {
		return err
	}
	a.appConfig = cfg

	var serverOpts []ServerOption
	if tel, ok := registry.GetTyped[*telemetry.Component](a.registry, component.ComponentTelemetry); ok && tel.IsEnabled() {
		serverOpts = append(serverOpts, WithTracing(tel.GetConfig().ServiceName))
	}
	a.server = NewHTTPServer(cfg, serverOpts...)

	if err := a.registry.Start(ctx); err != nil {
		return errors.Join(fmt.Errorf("start components: %w", err), a.Shutdown())
	}

	if h, ok := registry.GetTyped[*health.Component](a.registry, health.ComponentName); ok {
		a.server.GetEngine().GET("/health", h.Handler())
	}

	if a.onSetup != nil {
		if err := a.onSetup(a); err != nil {
			return errors.Join(fmt.Errorf("onSetup failed: %w", err), a.Shutdown())
		}
	}

	a.logger.DebugCtx(ctx, "✅ Application setup complete",
		zap.String("version", a.version))
	return nil
}

// Run sets up, serves until ctx ends or the server fails, then shuts down
func (a *Application) Run(ctx context.Context) error {
	if err := a.Setup(ctx); err != nil {
		return err
	}
	if err := a.server.Listen(); err != nil {
		return errors.Join(err, a.Shutdown())
	}

	a.setState(StateRunning)
	if a.onReady != nil {
		if err := a.onReady(a); err != nil {
			return errors.Join(fmt.Errorf("onReady failed: %w", err), a.Shutdown())
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(a.server.Serve)
	g.Go(func() error {
		<-gctx.Done()
		a.logger.DebugCtx(context.Background(), "🔻 Starting graceful shutdown...")
		return a.Shutdown()
	})
	return g.Wait()
}

// Shutdown drains HTTP, then stops components in reverse dependency order.
// Only the first call does the work.
func (a *Application) Shutdown() error {
	a.stopOnce.Do(func() {
		a.setState(StateStopping)

		ctx, cancel := context.WithTimeout(context.Background(), a.appConfig.ApiServer.ShutdownTimeout)
		defer cancel()

		var errs []error
		if a.server != nil {
			errs = append(errs, a.server.Shutdown(ctx))
		}
		if a.onShutdown != nil {
			if err := a.onShutdown(ctx); err != nil {
				a.logger.ErrorCtx(ctx, "OnShutdown callback failed", zap.Error(err))
				errs = append(errs, err)
			}
		}
		if err := a.injector.Shutdown(); err != nil {
			a.logger.ErrorCtx(ctx, "DI container shutdown failed", zap.Error(err))
		}
		// the logger component stops last and closes the log files
		errs = append(errs, a.registry.Stop(ctx))

		a.stopErr = errors.Join(errs...)
		a.setState(StateStopped)
	})
	return a.stopErr
}

// GetEngine gin engine, nil before Setup
func (a *Application) GetEngine() *gin.Engine {
	if a.server == nil {
		return nil
	}
	return a.server.GetEngine()
}

// GetServer HTTP server, nil before Setup
func (a *Application) GetServer() *HTTPServer {
	return a.server
}

// GetRegistry component registry
func (a *Application) GetRegistry() *registry.Registry {
	return a.registry
}

// GetConfigLoader merged configuration
func (a *Application) GetConfigLoader() *config.Loader {
	return a.configComp.GetLoader()
}

// GetAppConfig application configuration, defaults before Setup
func (a *Application) GetAppConfig() AppConfig {
	return a.appConfig
}

// GetInjector DI container
func (a *Application) GetInjector() *do.RootScope {
	return a.injector
}

// GetVersion application version
func (a *Application) GetVersion() string {
	return a.version
}

// GetState current lifecycle state
func (a *Application) GetState() AppState {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

func (a *Application) setState(state AppState) {
	a.mu.Lock()
	old := a.state
	a.state = state
	a.mu.Unlock()

	a.logger.DebugCtx(context.Background(), "State changed",
		zap.String("from", old.String()),
		zap.String("to", state.String()))
}
