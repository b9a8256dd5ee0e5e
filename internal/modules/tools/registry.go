// Package tools materializes database-defined tool records into executable
// tools for the model.
package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrUnregisteredImplementation means a record names an implementation that no
// factory was registered for.
var ErrUnregisteredImplementation = errors.New("unregistered tool implementation")

// ErrInvalidToolName means a record name is not accepted as a function name.
var ErrInvalidToolName = errors.New("invalid tool name")

// Implementation is the executable behind a tool record.
type Implementation interface {
	DefaultDescription() string
	Call(ctx context.Context, params map[string]any) (any, error)
}

// Factory constructs a fresh Implementation.
type Factory func() (Implementation, error)

// Registry maps implementation names to factories. It is populated at startup.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

func (r *Registry) Register(name string, f Factory) error {
	name = strings.TrimSpace(name)
	if name == "" || f == nil {
		return fmt.Errorf("register tool implementation: name and factory required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.factories[name]; dup {
		return fmt.Errorf("tool implementation %q already registered", name)
	}
	r.factories[name] = f
	return nil
}

func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[strings.TrimSpace(name)]
	return ok
}

func (r *Registry) Resolve(name string) (Implementation, error) {
	r.mu.RLock()
	f, ok := r.factories[strings.TrimSpace(name)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnregisteredImplementation, name)
	}
	impl, err := f()
	if err != nil {
		return nil, fmt.Errorf("construct tool implementation %q: %w", name, err)
	}
	if impl == nil {
		return nil, fmt.Errorf("%w: %q returned no implementation", ErrUnregisteredImplementation, name)
	}
	return impl, nil
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for name := range r.factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
