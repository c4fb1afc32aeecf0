package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/viper"
)

// Loader merges configuration sources by priority and exposes the result through viper
type Loader struct {
	sources      []ConfigSource
	mergedConfig map[string]interface{} // flat, dot-separated keys
	v            *viper.Viper
	loadedFiles  []string
}

// NewLoader creates an empty loader
func NewLoader() *Loader {
	return &Loader{
		sources:      make([]ConfigSource, 0),
		mergedConfig: make(map[string]interface{}),
		v:            viper.New(),
		loadedFiles:  make([]string, 0),
	}
}

// AddSource adds a configuration source
func (l *Loader) AddSource(source ConfigSource) {
	l.sources = append(l.sources, source)
}

// Load loads all sources, lowest priority first, so later layers win
func (l *Loader) Load() error {
	sort.SliceStable(l.sources, func(i, j int) bool {
		return l.sources[i].Priority() < l.sources[j].Priority()
	})

	merged := make(map[string]interface{})
	loadedFiles := make([]string, 0)
	for _, source := range l.sources {
		data, err := source.Load()
		if err != nil {
			return fmt.Errorf("load config source %s: %w", source.Name(), err)
		}

		if fileSource, ok := source.(*FileSource); ok && len(data) > 0 {
			loadedFiles = append(loadedFiles, fileSource.path)
		}

		mergeFlat(merged, data)
	}

	l.mergedConfig = merged
	l.loadedFiles = loadedFiles
	l.syncToViper()

	return nil
}

// mergeFlat a key replaces both the same key and anything nested below it
func mergeFlat(dst, src map[string]interface{}) {
	for key, value := range src {
		prefix := key + "."
		for existing := range dst {
			if strings.HasPrefix(existing, prefix) {
				delete(dst, existing)
			}
		}
		dst[key] = value
	}
}

// syncToViper rebuilds viper from the merged flat map
func (l *Loader) syncToViper() {
	v := viper.New()
	for key, value := range unflattenMap(l.mergedConfig) {
		v.Set(key, value)
	}
	l.v = v
}

// unflattenMap {"limiter.enabled": true} -> {"limiter": {"enabled": true}}
func unflattenMap(flat map[string]interface{}) map[string]interface{} {
	keys := make([]string, 0, len(flat))
	for key := range flat {
		keys = append(keys, key)
	}
	// parents before children so a deeper key never gets overwritten by a scalar
	sort.Strings(keys)

	result := make(map[string]interface{})
	for _, key := range keys {
		setNestedValue(result, key, flat[key])
	}
	return result
}

func setNestedValue(m map[string]interface{}, key string, value interface{}) {
	keys := splitKey(key)
	if len(keys) == 0 {
		return
	}

	current := m
	for _, k := range keys[:len(keys)-1] {
		nested, ok := current[k].(map[string]interface{})
		if !ok {
			nested = make(map[string]interface{})
			current[k] = nested
		}
		current = nested
	}

	current[keys[len(keys)-1]] = value
}

// splitKey splits on dots, dropping empty segments
func splitKey(key string) []string {
	result := make([]string, 0)
	for _, part := range strings.Split(key, ".") {
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}

// Unmarshal decodes the section under key into v; an empty key decodes everything.
// Durations accept strings such as "12s".
func (l *Loader) Unmarshal(key string, v interface{}) error {
	if key == "" {
		return l.v.Unmarshal(v)
	}
	return l.v.UnmarshalKey(key, v)
}

// Get raw value
func (l *Loader) Get(key string) interface{} {
	return l.v.Get(key)
}

// GetString string value
func (l *Loader) GetString(key string) string {
	return l.v.GetString(key)
}

// GetInt integer value
func (l *Loader) GetInt(key string) int {
	return l.v.GetInt(key)
}

// GetBool boolean value
func (l *Loader) GetBool(key string) bool {
	return l.v.GetBool(key)
}

// IsSet whether the key or any key below it is set
func (l *Loader) IsSet(key string) bool {
	return l.v.IsSet(key)
}

// AllSettings nested view of the merged configuration
func (l *Loader) AllSettings() map[string]interface{} {
	return l.v.AllSettings()
}

// GetLoadedFiles files that contributed at least one key
func (l *Loader) GetLoadedFiles() []string {
	return l.loadedFiles
}

// GetViper underlying viper instance
func (l *Loader) GetViper() *viper.Viper {
	return l.v
}

// Reload reloads every source
func (l *Loader) Reload() error {
	return l.Load()
}
