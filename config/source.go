package config

// ConfigSource one layer of configuration
type ConfigSource interface {
	// Name source name (for logging and errors)
	Name() string

	// Priority higher values override lower ones
	Priority() int

	// Load returns flat dot-separated keys, e.g. {"limiter.enabled": true}
	Load() (map[string]interface{}, error)
}
