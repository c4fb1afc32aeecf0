package grpc

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Config gRPC component configuration, read from the "grpc" section
type Config struct {
	Server ServerConfig `mapstructure:"server"`
}

// ServerConfig gRPC server configuration
type ServerConfig struct {
	Enabled       bool   `mapstructure:"enabled"`        // Whether to start the gRPC server
	Port          int    `mapstructure:"port"`           // Listen port, 0 picks a free one
	MaxRecvSize   int    `mapstructure:"max_recv_size"`  // Maximum receive size (MB)
	MaxSendSize   int    `mapstructure:"max_send_size"`  // Maximum send size (MB)
	EnableReflect bool   `mapstructure:"enable_reflect"` // Register the reflection service
	EnableLog     *bool  `mapstructure:"enable_log"`     // Interceptor logging (nil means enabled)
	Policy        string `mapstructure:"policy"`         // Admission policy for every call, empty uses the endpoint mapping

	// TrustedUserMetadata metadata key read as the user id without verification,
	// for deployments behind an authenticating proxy; empty disables it
	TrustedUserMetadata string `mapstructure:"trusted_user_metadata"`
}

// IsLogEnabled returns whether interceptor logging is enabled (default true)
func (c *ServerConfig) IsLogEnabled() bool {
	if c.EnableLog == nil {
		return true
	}
	return *c.EnableLog
}

// ApplyDefaults fills zero values
func (c *ServerConfig) ApplyDefaults() {
	if c.MaxRecvSize == 0 {
		c.MaxRecvSize = 4
	}
	if c.MaxSendSize == 0 {
		c.MaxSendSize = 4
	}
}

// Validate configuration, a disabled server is always valid
func (c *ServerConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Min(0), validation.Max(65535)),
		validation.Field(&c.MaxRecvSize, validation.Min(1)),
		validation.Field(&c.MaxSendSize, validation.Min(1)),
	)
}
