package providers

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrProviderNotFound is returned when a vendor has no registered adapter
	ErrProviderNotFound = errors.New("provider not found")

	// ErrProviderAlreadyRegistered is returned when trying to register a duplicate adapter
	ErrProviderAlreadyRegistered = errors.New("provider already registered")
)

// Registry maps vendor names to adapters
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry creates a new provider registry
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[string]Adapter),
	}
}

// Register registers an adapter under its Name()
func (r *Registry) Register(adapter Adapter) error {
	if adapter == nil {
		return errors.New("adapter cannot be nil")
	}

	name := adapter.Name()
	if name == "" {
		return errors.New("adapter name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.adapters[name]; exists {
		return fmt.Errorf("%w: %s", ErrProviderAlreadyRegistered, name)
	}

	r.adapters[name] = adapter
	return nil
}

// Unregister removes an adapter from the registry
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.adapters[name]; !exists {
		return ErrProviderNotFound
	}

	delete(r.adapters, name)
	return nil
}

// Get retrieves an adapter by vendor name
func (r *Registry) Get(name string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	adapter, exists := r.adapters[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}

	return adapter, nil
}

// List returns all registered vendor names, sorted
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Count returns the number of registered adapters
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.adapters)
}

// AdapterBuilder creates an adapter from its configuration
type AdapterBuilder func(config ProviderConfig) (Adapter, error)

// RegistryBuilder helps build a registry with multiple adapters
type RegistryBuilder struct {
	builders map[string]AdapterBuilder
}

// NewRegistryBuilder creates a new registry builder
func NewRegistryBuilder() *RegistryBuilder {
	return &RegistryBuilder{
		builders: make(map[string]AdapterBuilder),
	}
}

// WithAdapterBuilder registers a builder for a vendor
func (rb *RegistryBuilder) WithAdapterBuilder(name string, builder AdapterBuilder) *RegistryBuilder {
	rb.builders[name] = builder
	return rb
}

// Build creates an adapter for every vendor that has both a builder and a config.
// Vendors with an empty API key are still registered; their adapter reports
// ErrMissingCredential at call time.
func (rb *RegistryBuilder) Build(configs map[string]ProviderConfig) (*Registry, error) {
	registry := NewRegistry()

	for name, builder := range rb.builders {
		config, ok := configs[name]
		if !ok {
			continue
		}
		adapter, err := builder(config)
		if err != nil {
			return nil, fmt.Errorf("failed to build provider %s: %w", name, err)
		}
		if err := registry.Register(adapter); err != nil {
			return nil, fmt.Errorf("failed to register provider %s: %w", name, err)
		}
	}

	return registry, nil
}
