package component

// ConfigLoader read access to the layered configuration.
// Components read their own section instead of depending on an application config struct.
type ConfigLoader interface {
	// Get raw value of a key (e.g. "limiter.enabled")
	Get(key string) interface{}

	// Unmarshal decodes a configuration section into a struct
	//
	// Example:
	//   var cfg limiter.Config
	//   if err := loader.Unmarshal("limiter", &cfg); err != nil {
	//       return err
	//   }
	Unmarshal(key string, v interface{}) error

	// GetString Get string configuration
	GetString(key string) string

	// Get integer configuration
	GetInt(key string) int

	// GetBool Get boolean configuration
	GetBool(key string) bool

	// Check if the configuration item exists
	IsSet(key string) bool
}
