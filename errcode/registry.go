package errcode

import (
	"fmt"
	"sync"
)

// Registry guards against two errors sharing one code
type Registry struct {
	mu     sync.RWMutex
	codes  map[int]string // code -> module:msgKey
	locked bool
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{codes: make(map[int]string)}
}

var globalRegistry = NewRegistry()

// Register adds err to the global registry, panicking on a conflicting code
func Register(err *LayeredError) *LayeredError {
	return globalRegistry.Register(err)
}

// Register adds err; registering the same code and key twice is a no-op
func (r *Registry) Register(err *LayeredError) *LayeredError {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.locked {
		panic(fmt.Sprintf("registry is locked, cannot register error code: %d", err.Code()))
	}

	key := err.Module() + ":" + err.MsgKey()
	if existing, exists := r.codes[err.Code()]; exists {
		if existing != key {
			panic(fmt.Sprintf(
				"error code conflict: code %d is already registered as %s, cannot register as %s",
				err.Code(), existing, key,
			))
		}
		return err
	}

	r.codes[err.Code()] = key
	return err
}

// Lock rejects further registrations, usually once startup is done
func (r *Registry) Lock() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.locked = true
}

// IsLocked whether the registry is locked
func (r *Registry) IsLocked() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.locked
}

// GetAll snapshot of registered codes
func (r *Registry) GetAll() map[int]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	codes := make(map[int]string, len(r.codes))
	for k, v := range r.codes {
		codes[k] = v
	}
	return codes
}

// LockGlobalRegistry locks the global registry
func LockGlobalRegistry() {
	globalRegistry.Lock()
}

// GetAllRegisteredCodes snapshot of the global registry
func GetAllRegisteredCodes() map[int]string {
	return globalRegistry.GetAll()
}
