package application

import (
	"context"
	"fmt"

	"github.com/KOMKZ/go-yogan-admission/component"
	"github.com/KOMKZ/go-yogan-admission/logger"
)

// LoggerComponent configures the global log manager from the "logger" section
type LoggerComponent struct {
	coreLogger *logger.CtxZapLogger
}

// NewLoggerComponent creates the logger component
func NewLoggerComponent() *LoggerComponent {
	return &LoggerComponent{}
}

// Name component name
func (l *LoggerComponent) Name() string {
	return component.ComponentLogger
}

// DependsOn config
func (l *LoggerComponent) DependsOn() []string {
	return []string{component.ComponentConfig}
}

// Init applies the configured manager; without a section the defaults stay
func (l *LoggerComponent) Init(ctx context.Context, loader component.ConfigLoader) error {
	if loader.IsSet("logger") {
		cfg := logger.DefaultManagerConfig()
		if err := loader.Unmarshal("logger", &cfg); err != nil {
			return fmt.Errorf("read logger config: %w", err)
		}
		cfg.ApplyDefaults()
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid logger config: %w", err)
		}
		logger.ResetManager(cfg)
	}

	l.coreLogger = logger.GetLogger("yogan")
	return nil
}

// Start nothing to start
func (l *LoggerComponent) Start(ctx context.Context) error {
	return nil
}

// Stop flushes and closes every module logger; it runs last
func (l *LoggerComponent) Stop(ctx context.Context) error {
	if l.coreLogger != nil {
		l.coreLogger.DebugCtx(ctx, "✅ Application stopped")
		logger.CloseAll()
	}
	return nil
}

// GetLogger core logger, nil before Init
func (l *LoggerComponent) GetLogger() *logger.CtxZapLogger {
	return l.coreLogger
}
