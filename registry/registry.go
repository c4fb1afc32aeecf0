// Package registry runs component lifecycles in dependency order.
//
// Components declare their dependencies by name through DependsOn; a name
// prefixed with "optional:" is honoured only when that component is
// registered. Components of one dependency layer run concurrently.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/KOMKZ/go-yogan-admission/component"
	"github.com/KOMKZ/go-yogan-admission/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const optionalPrefix = "optional:"

// Registry component lifecycle manager
type Registry struct {
	mu         sync.RWMutex
	components map[string]component.Component
	logger     *logger.CtxZapLogger
}

// NewRegistry creates an empty registry
func NewRegistry(ctxLogger *logger.CtxZapLogger) *Registry {
	if ctxLogger == nil {
		ctxLogger = logger.GetLogger("yogan")
	}
	return &Registry{
		components: make(map[string]component.Component),
		logger:     ctxLogger,
	}
}

// Register adds a component; names must be unique
func (r *Registry) Register(comp component.Component) error {
	if comp == nil {
		return errors.New("component cannot be nil")
	}
	name := comp.Name()
	if name == "" {
		return errors.New("component name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.components[name]; exists {
		return fmt.Errorf("component %q already registered", name)
	}
	r.components[name] = comp
	return nil
}

// MustRegister panics on a registration error
func (r *Registry) MustRegister(comps ...component.Component) {
	for _, comp := range comps {
		if err := r.Register(comp); err != nil {
			panic(err)
		}
	}
}

// Get looks a component up by name
func (r *Registry) Get(name string) (component.Component, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	comp, ok := r.components[name]
	return comp, ok
}

// Has whether name is registered
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// GetTyped looks a component up by name and asserts its type
func GetTyped[T component.Component](r *Registry, name string) (T, bool) {
	var zero T
	comp, ok := r.Get(name)
	if !ok {
		return zero, false
	}
	typed, ok := comp.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}

// Resolve components in dependency order
func (r *Registry) Resolve() ([]component.Component, error) {
	layers, err := r.resolveLayers()
	if err != nil {
		return nil, err
	}
	var order []component.Component
	for _, layer := range layers {
		order = append(order, layer...)
	}
	return order, nil
}

// Init initializes every component, dependencies first
func (r *Registry) Init(ctx context.Context, loader component.ConfigLoader) error {
	layers, err := r.resolveLayers()
	if err != nil {
		return err
	}
	for idx, layer := range layers {
		r.logger.DebugCtx(ctx, "Init component layer", zap.Int("layer", idx), zap.Strings("components", names(layer)))
		if err := runLayer(ctx, layer, func(ctx context.Context, c component.Component) error {
			return c.Init(ctx, loader)
		}); err != nil {
			r.logger.ErrorCtx(ctx, "❌ Component init failed", zap.Error(err))
			return err
		}
	}
	return nil
}

// Start starts every component, dependencies first
func (r *Registry) Start(ctx context.Context) error {
	layers, err := r.resolveLayers()
	if err != nil {
		return err
	}
	for idx, layer := range layers {
		r.logger.DebugCtx(ctx, "Start component layer", zap.Int("layer", idx), zap.Strings("components", names(layer)))
		if err := runLayer(ctx, layer, func(ctx context.Context, c component.Component) error {
			return c.Start(ctx)
		}); err != nil {
			r.logger.ErrorCtx(ctx, "❌ Component start failed", zap.Error(err))
			return err
		}
	}
	r.logger.InfoCtx(ctx, "✅ All components started", zap.Int("total", len(r.components)))
	return nil
}

// Stop stops every component in reverse order. All components are stopped
// even when some fail; the errors are joined.
func (r *Registry) Stop(ctx context.Context) error {
	layers, err := r.resolveLayers()
	if err != nil {
		return err
	}

	var errs []error
	for i := len(layers) - 1; i >= 0; i-- {
		var (
			mu sync.Mutex
			wg sync.WaitGroup
		)
		for _, comp := range layers[i] {
			wg.Add(1)
			go func(c component.Component) {
				defer wg.Done()
				if err := c.Stop(ctx); err != nil {
					mu.Lock()
					errs = append(errs, fmt.Errorf("stop %s: %w", c.Name(), err))
					mu.Unlock()
				}
			}(comp)
		}
		wg.Wait()
	}

	if err := errors.Join(errs...); err != nil {
		r.logger.ErrorCtx(ctx, "Component stop failed", zap.Error(err))
		return err
	}
	r.logger.InfoCtx(ctx, "✅ All components stopped")
	return nil
}

// runLayer runs fn for every component of a layer concurrently, first error wins
func runLayer(ctx context.Context, layer []component.Component, fn func(context.Context, component.Component) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, comp := range layer {
		comp := comp
		g.Go(func() error {
			if err := fn(gctx, comp); err != nil {
				return fmt.Errorf("component %q: %w", comp.Name(), err)
			}
			return nil
		})
	}
	return g.Wait()
}

// resolveLayers groups components so every dependency sits in an earlier layer
func (r *Registry) resolveLayers() ([][]component.Component, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	inDegree := make(map[string]int, len(r.components))
	dependents := make(map[string][]string, len(r.components))
	for name := range r.components {
		inDegree[name] = 0
	}

	for name, comp := range r.components {
		for _, dep := range comp.DependsOn() {
			depName, optional := strings.CutPrefix(dep, optionalPrefix)
			if _, ok := r.components[depName]; !ok {
				if optional {
					continue
				}
				return nil, fmt.Errorf("component %q depends on unregistered %q", name, depName)
			}
			dependents[depName] = append(dependents[depName], name)
			inDegree[name]++
		}
	}

	var layers [][]component.Component
	done := 0
	for done < len(r.components) {
		var ready []string
		for name, degree := range inDegree {
			if degree == 0 {
				ready = append(ready, name)
			}
		}
		if len(ready) == 0 {
			return nil, errors.New("circular component dependency")
		}
		sort.Strings(ready)

		layer := make([]component.Component, 0, len(ready))
		for _, name := range ready {
			layer = append(layer, r.components[name])
			delete(inDegree, name)
			for _, next := range dependents[name] {
				inDegree[next]--
			}
		}
		layers = append(layers, layer)
		done += len(ready)
	}
	return layers, nil
}

func names(layer []component.Component) []string {
	out := make([]string, len(layer))
	for i, c := range layer {
		out[i] = c.Name()
	}
	return out
}
