// internal/task/registry.go
package task

import (
	"fmt"
	"sync"
)

// Factory builds the execution hook for one task run. It is invoked fresh on
// every load so each run starts from clean state.
type Factory func(name, id string, params map[string]interface{}) (Hook, error)

// ModuleContractError reports a task module that is missing or does not
// conform to the task contract. Fatal to that task's creation only, not to
// the process.
type ModuleContractError struct {
	Path   string
	Reason string
}

func (e *ModuleContractError) Error() string {
	return fmt.Sprintf("task module %q: %s", e.Path, e.Reason)
}

// Registry maps module paths from the group configuration to task factories.
// Registration happens at compile time via init wiring in the binary; lookups
// happen on every load.
type Registry struct {
	factories map[string]Factory
	mu        sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a factory under a module path.
func (r *Registry) Register(path string, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[path]; exists {
		return fmt.Errorf("task module %q already registered", path)
	}

	r.factories[path] = factory
	return nil
}

// Resolve returns the factory for a module path.
func (r *Registry) Resolve(path string) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, exists := r.factories[path]
	if !exists {
		return nil, &ModuleContractError{Path: path, Reason: "no task registered for module path"}
	}

	return factory, nil
}

// Paths returns the registered module paths.
func (r *Registry) Paths() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	paths := make([]string, 0, len(r.factories))
	for p := range r.factories {
		paths = append(paths, p)
	}
	return paths
}
