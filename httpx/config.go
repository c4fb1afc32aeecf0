// Package httpx renders uniform JSON responses and error codes
package httpx

// ErrorLoggingConfig controls logging of errors rendered by HandleError
type ErrorLoggingConfig struct {
	// Enable log rendered errors (default false)
	Enable bool `mapstructure:"enable" json:"enable"`

	// IgnoreHTTPStatus statuses never logged, e.g. []int{429}
	IgnoreHTTPStatus []int `mapstructure:"ignore_http_status" json:"ignore_http_status"`

	// FullErrorChain include the wrapped cause chain (default true)
	FullErrorChain bool `mapstructure:"full_error_chain" json:"full_error_chain"`

	// LogLevel error, warn or info (default error)
	LogLevel string `mapstructure:"log_level" json:"log_level"`
}

// DefaultErrorLoggingConfig logging disabled
func DefaultErrorLoggingConfig() ErrorLoggingConfig {
	return ErrorLoggingConfig{
		Enable:           false,
		IgnoreHTTPStatus: []int{},
		FullErrorChain:   true,
		LogLevel:         "error",
	}
}
