package config

import (
	"os"
	"strings"
)

// EnvSource prefixed environment variables
//
// A single underscore separates key segments, a double underscore is a literal one:
//
//	ADMISSION_LIMITER_ENABLED=true                     -> limiter.enabled
//	ADMISSION_LIMITER_POLICIES_FIXED_PERMIT__LIMIT=10  -> limiter.policies.fixed.permit_limit
type EnvSource struct {
	prefix   string
	priority int
	bindings map[string]string // config key -> env name
}

// NewEnvSource creates an environment source
func NewEnvSource(prefix string, priority int) *EnvSource {
	return &EnvSource{
		prefix:   prefix,
		priority: priority,
		bindings: make(map[string]string),
	}
}

// AddBinding maps a config key to an explicit variable name.
// Once bindings exist only bound variables are read.
//
//	src.AddBinding("limiter.enabled", "LIMITER_ON")
func (s *EnvSource) AddBinding(key, envKey string) {
	s.bindings[key] = envKey
}

// Name source name
func (s *EnvSource) Name() string {
	return "env:" + s.prefix
}

// Priority source priority
func (s *EnvSource) Priority() int {
	return s.priority
}

// Load reads matching variables
func (s *EnvSource) Load() (map[string]interface{}, error) {
	result := make(map[string]interface{})

	if len(s.bindings) > 0 {
		for key, envKey := range s.bindings {
			fullEnvKey := envKey
			if s.prefix != "" && !strings.HasPrefix(envKey, s.prefix+"_") {
				fullEnvKey = s.prefix + "_" + envKey
			}

			if value, ok := os.LookupEnv(fullEnvKey); ok && value != "" {
				result[key] = value
			}
		}
		return result, nil
	}

	if s.prefix == "" {
		return result, nil
	}

	prefix := s.prefix + "_"
	for _, env := range os.Environ() {
		name, value, ok := strings.Cut(env, "=")
		if !ok || !strings.HasPrefix(name, prefix) {
			continue
		}
		result[envToKey(strings.TrimPrefix(name, prefix))] = value
	}

	return result, nil
}

// envToKey LIMITER_GLOBAL_PERMIT__LIMIT -> limiter.global.permit_limit
func envToKey(name string) string {
	parts := strings.Split(strings.ToLower(name), "__")
	for i, part := range parts {
		parts[i] = strings.ReplaceAll(part, "_", ".")
	}
	return strings.Join(parts, "_")
}
