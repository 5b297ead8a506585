package app

import (
	"fmt"
	"sync"

	"github.com/fd1az/perp-router/internal/apperror"
)

// Registry holds routes keyed by id in registration order. Order matters:
// it is the tie-break order for best-route selection.
type Registry struct {
	mu     sync.RWMutex
	order  []string
	routes map[string]Route
}

// NewRegistry creates a registry holding routes.
func NewRegistry(routes ...Route) (*Registry, error) {
	r := &Registry{routes: make(map[string]Route)}
	for _, route := range routes {
		if err := r.Register(route); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a route. Ids must be unique.
func (r *Registry) Register(route Route) error {
	if route == nil || route.ID() == "" {
		return apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("route without id"))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.routes[route.ID()]; ok {
		return apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext(fmt.Sprintf("route %q registered twice", route.ID())))
	}
	r.routes[route.ID()] = route
	r.order = append(r.order, route.ID())
	return nil
}

// Get returns the route with id.
func (r *Registry) Get(id string) (Route, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	route, ok := r.routes[id]
	if !ok {
		return nil, apperror.NotFound(apperror.CodeRouteNotFound, id)
	}
	return route, nil
}

// All returns the routes in registration order.
func (r *Registry) All() []Route {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Route, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.routes[id])
	}
	return out
}

// IDs returns route ids in registration order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Len returns the number of routes.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
