package config

import (
	"fmt"

	"github.com/samber/do/v2"
	"github.com/spf13/pflag"
)

// ProvideLoaderOptions options for ProvideLoader
type ProvideLoaderOptions struct {
	ConfigPath   string            // configuration directory
	ConfigPrefix string            // environment variable prefix
	Flags        *pflag.FlagSet    // optional command line flags
	FlagBindings map[string]string // flag name -> config key
}

// ProvideLoader registers the loader with a do injector.
// Config is the lowest layer and has no dependencies.
//
//	do.Provide(injector, config.ProvideLoader(config.ProvideLoaderOptions{
//	    ConfigPath:   "configs",
//	    ConfigPrefix: "ADMISSION",
//	}))
//	loader := do.MustInvoke[*config.Loader](injector)
func ProvideLoader(opts ProvideLoaderOptions) func(do.Injector) (*Loader, error) {
	return func(do.Injector) (*Loader, error) {
		if opts.ConfigPath == "" {
			opts.ConfigPath = "configs"
		}

		loader, err := NewLoaderBuilder().
			WithConfigPath(opts.ConfigPath).
			WithEnvPrefix(opts.ConfigPrefix).
			WithFlags(opts.Flags, opts.FlagBindings).
			Build()
		if err != nil {
			return nil, fmt.Errorf("config loader build failed: %w", err)
		}

		return loader, nil
	}
}

// ProvideLoaderValue registers an already built loader (tests, embedding)
func ProvideLoaderValue(loader *Loader) func(do.Injector) (*Loader, error) {
	return func(do.Injector) (*Loader, error) {
		return loader, nil
	}
}
