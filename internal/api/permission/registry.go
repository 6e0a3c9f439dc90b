// Package permission holds the single source of truth for route permission
// requirements: every protected route declares its (resource, action) pair
// during router construction, the table is frozen, and the gating middleware
// consults it for each request. A route with no entry is public by explicit
// policy.
package permission

import (
	"fmt"
	"sync/atomic"
)

// Requirement is the permission a route demands from the auth gateway.
type Requirement struct {
	Resource string
	Action   string
}

type routeKey struct {
	method  string
	pattern string
}

// Registry maps (method, route pattern) to the required permission. It is
// built fully during startup, frozen before the server accepts traffic, and
// read-only thereafter, so lookups need no locking.
type Registry struct {
	entries map[routeKey]Requirement
	frozen  atomic.Bool
}

// NewRegistry creates an empty, unfrozen registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[routeKey]Requirement)}
}

// Register declares the requirement for a route. Duplicate declarations and
// registration after Freeze are wiring bugs surfaced at startup.
func (r *Registry) Register(method, pattern, resource, action string) error {
	if r.frozen.Load() {
		return fmt.Errorf("permission registry is frozen; cannot register %s %s", method, pattern)
	}
	if resource == "" || action == "" {
		return fmt.Errorf("permission for %s %s must name a resource and action", method, pattern)
	}

	k := routeKey{method: method, pattern: pattern}
	if existing, ok := r.entries[k]; ok {
		return fmt.Errorf("duplicate permission for %s %s: already %s:%s",
			method, pattern, existing.Resource, existing.Action)
	}
	r.entries[k] = Requirement{Resource: resource, Action: action}
	return nil
}

// Freeze marks the registry complete. Must be called once, after all routes
// are registered and before the server starts serving.
func (r *Registry) Freeze() {
	r.frozen.Store(true)
}

// Frozen reports whether the registry has been frozen.
func (r *Registry) Frozen() bool {
	return r.frozen.Load()
}

// Lookup returns the requirement for a route. The second return is false
// for unmapped routes, which are public.
func (r *Registry) Lookup(method, pattern string) (Requirement, bool) {
	req, ok := r.entries[routeKey{method: method, pattern: pattern}]
	return req, ok
}

// Len returns the number of registered requirements.
func (r *Registry) Len() int {
	return len(r.entries)
}
