package ecommerce

import (
	"fmt"
	"sort"

	"github.com/channelsync/backend/internal/domain/marketplace"

	"go.uber.org/zap"
)

// Registry holds the configured marketplace adapters. It is built once at
// startup and read-only afterwards, so lookups need no locking.
type Registry struct {
	adapters map[marketplace.Code]marketplace.Marketplace
}

// NewRegistry builds a registry from the given adapters. Registering two
// adapters for the same code is a wiring bug and fails fast.
func NewRegistry(logger *zap.Logger, adapters ...marketplace.Marketplace) (*Registry, error) {
	r := &Registry{adapters: make(map[marketplace.Code]marketplace.Marketplace, len(adapters))}
	for _, adapter := range adapters {
		code := adapter.Code()
		if !code.IsValid() {
			return nil, fmt.Errorf("ecommerce: adapter has invalid code %q", code)
		}
		if _, exists := r.adapters[code]; exists {
			return nil, fmt.Errorf("ecommerce: duplicate adapter for %q", code)
		}
		r.adapters[code] = adapter
		logger.Info("registered marketplace adapter", zap.String("marketplace", code.String()))
	}
	return r, nil
}

var _ marketplace.Registry = (*Registry)(nil)

// Get returns the adapter for the given marketplace name, matching
// case-insensitively. An enumerated but unconfigured marketplace still
// returns ErrAdapterNotConfigured.
func (r *Registry) Get(name string) (marketplace.Marketplace, error) {
	code, ok := marketplace.ParseCode(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", marketplace.ErrAdapterNotConfigured, name)
	}
	adapter, ok := r.adapters[code]
	if !ok {
		return nil, fmt.Errorf("%w: %q", marketplace.ErrAdapterNotConfigured, name)
	}
	return adapter, nil
}

// All returns every configured adapter.
func (r *Registry) All() []marketplace.Marketplace {
	out := make([]marketplace.Marketplace, 0, len(r.adapters))
	for _, name := range r.Names() {
		adapter := r.adapters[marketplace.Code(name)]
		out = append(out, adapter)
	}
	return out
}

// Names returns the configured marketplace names in stable order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for code := range r.adapters {
		names = append(names, code.String())
	}
	sort.Strings(names)
	return names
}
