package application

import (
	"context"
	"errors"

	"github.com/KOMKZ/go-yogan-admission/component"
	"github.com/KOMKZ/go-yogan-admission/config"
)

// ConfigComponent exposes the loader as the root of the component graph.
// It implements component.ConfigLoader by delegating to the loader.
type ConfigComponent struct {
	loader *config.Loader
}

// NewConfigComponent wraps an already built loader
func NewConfigComponent(loader *config.Loader) *ConfigComponent {
	return &ConfigComponent{loader: loader}
}

// Name component name
func (c *ConfigComponent) Name() string {
	return component.ComponentConfig
}

// DependsOn no dependencies
func (c *ConfigComponent) DependsOn() []string {
	return nil
}

// Init checks that a loader is present
func (c *ConfigComponent) Init(ctx context.Context, loader component.ConfigLoader) error {
	if c.loader == nil {
		return errors.New("config loader not set")
	}
	return nil
}

// Start nothing to start
func (c *ConfigComponent) Start(ctx context.Context) error {
	return nil
}

// Stop nothing to stop
func (c *ConfigComponent) Stop(ctx context.Context) error {
	return nil
}

// GetLoader underlying loader
func (c *ConfigComponent) GetLoader() *config.Loader {
	return c.loader
}

func (c *ConfigComponent) Get(key string) interface{} {
	return c.loader.Get(key)
}

func (c *ConfigComponent) Unmarshal(key string, v interface{}) error {
	return c.loader.Unmarshal(key, v)
}

func (c *ConfigComponent) GetString(key string) string {
	return c.loader.GetString(key)
}

func (c *ConfigComponent) GetInt(key string) int {
	return c.loader.GetInt(key)
}

func (c *ConfigComponent) GetBool(key string) bool {
	return c.loader.GetBool(key)
}

func (c *ConfigComponent) IsSet(key string) bool {
	return c.loader.IsSet(key)
}
