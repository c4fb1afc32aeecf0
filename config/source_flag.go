package config

import (
	"github.com/spf13/pflag"
)

// FlagSource command line flags explicitly set by the user.
// Each binding maps a flag name to a config key; unchanged flags keep lower layers.
//
//	src := config.NewFlagSource(cmd.Flags(), map[string]string{
//	    "port": "server.port",
//	}, 100)
type FlagSource struct {
	flags    *pflag.FlagSet
	bindings map[string]string // flag name -> config key
	priority int
}

// NewFlagSource creates a flag source
func NewFlagSource(flags *pflag.FlagSet, bindings map[string]string, priority int) *FlagSource {
	return &FlagSource{
		flags:    flags,
		bindings: bindings,
		priority: priority,
	}
}

// Name source name
func (s *FlagSource) Name() string {
	return "flags"
}

// Priority source priority
func (s *FlagSource) Priority() int {
	return s.priority
}

// Load reads changed flags; values are strings and decoded by Unmarshal
func (s *FlagSource) Load() (map[string]interface{}, error) {
	result := make(map[string]interface{})
	if s.flags == nil {
		return result, nil
	}

	for name, key := range s.bindings {
		flag := s.flags.Lookup(name)
		if flag == nil || !flag.Changed {
			continue
		}
		result[key] = flag.Value.String()
	}

	return result, nil
}
