package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/pflag"
)

// Source priorities used by LoaderBuilder
const (
	PriorityBaseFile = 10
	PriorityEnvFile  = 20
	PriorityEnv      = 50
	PriorityFlags    = 100
)

// LoaderBuilder assembles the standard layering:
// config.yaml < <env>.yaml < environment variables < flags
type LoaderBuilder struct {
	configPath   string
	envPrefix    string
	flags        *pflag.FlagSet
	flagBindings map[string]string
}

// NewLoaderBuilder creates a loader builder
func NewLoaderBuilder() *LoaderBuilder {
	return &LoaderBuilder{}
}

// WithConfigPath configuration directory
func (b *LoaderBuilder) WithConfigPath(path string) *LoaderBuilder {
	b.configPath = path
	return b
}

// WithEnvPrefix environment variable prefix, e.g. "ADMISSION"
func (b *LoaderBuilder) WithEnvPrefix(prefix string) *LoaderBuilder {
	b.envPrefix = prefix
	return b
}

// WithFlags command line flags and their flag name -> config key bindings
func (b *LoaderBuilder) WithFlags(flags *pflag.FlagSet, bindings map[string]string) *LoaderBuilder {
	b.flags = flags
	b.flagBindings = bindings
	return b
}

// Build creates and loads the loader
func (b *LoaderBuilder) Build() (*Loader, error) {
	loader := NewLoader()

	if b.configPath != "" {
		loader.AddSource(NewFileSource(filepath.Join(b.configPath, "config.yaml"), PriorityBaseFile))
		if env := GetEnv(); env != "" {
			loader.AddSource(NewFileSource(filepath.Join(b.configPath, env+".yaml"), PriorityEnvFile))
		}
	}

	if b.envPrefix != "" {
		loader.AddSource(NewEnvSource(b.envPrefix, PriorityEnv))
	}

	if b.flags != nil {
		loader.AddSource(NewFlagSource(b.flags, b.flagBindings, PriorityFlags))
	}

	if err := loader.Load(); err != nil {
		return nil, err
	}

	return loader, nil
}

// GetEnv deployment environment: APP_ENV, then ENV, default "dev"
func GetEnv() string {
	if env := os.Getenv("APP_ENV"); env != "" {
		return env
	}
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "dev"
}
