// Package component defines the lifecycle contract shared by the admission
// packages. It is the lowest layer and imports no other package of the module.
package component

import "context"

// Component unified lifecycle: Init → Start → Stop
type Component interface {
	// Name unique component name
	Name() string

	// DependsOn names of components that must be initialized first.
	// A name prefixed with "optional:" is skipped when not registered.
	DependsOn() []string

	// Init reads configuration from loader and creates resources.
	// Must not start serving.
	Init(ctx context.Context, loader ConfigLoader) error

	// Start starts background work
	Start(ctx context.Context) error

	// Stop releases resources, safe to call more than once
	Stop(ctx context.Context) error
}
