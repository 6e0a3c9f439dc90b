package provider

import (
	"fmt"
	"sort"

	"github.com/phrazzld/modelgate/internal/domain"
)

// Registry is a static name -> provider mapping populated once at
// initialization. There is no dynamic discovery; the set of providers is
// fixed for the process lifetime, so lookups need no locking.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry builds a registry from the given providers. Duplicate names
// are rejected so a misconfigured wiring fails at startup rather than
// shadowing a provider silently.
func NewRegistry(providers ...Provider) (*Registry, error) {
	m := make(map[string]Provider, len(providers))
	for _, p := range providers {
		if _, exists := m[p.Name()]; exists {
			return nil, fmt.Errorf("duplicate provider registration: %q", p.Name())
		}
		m[p.Name()] = p
	}
	return &Registry{providers: m}, nil
}

// Get returns the provider registered under name. Unknown names yield a
// validation error, never a panic.
func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown provider %q", domain.ErrValidation, name)
	}
	return p, nil
}

// Validate checks that the named provider exists and supports the given
// model. Used to reject a task request before anything is persisted.
func (r *Registry) Validate(providerName, model string) error {
	p, err := r.Get(providerName)
	if err != nil {
		return err
	}
	for _, m := range p.SupportedModels() {
		if m == model {
			return nil
		}
	}
	return fmt.Errorf("%w: model %q not supported by provider %q",
		domain.ErrValidation, model, providerName)
}

// Names returns the registered provider names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
