package remote

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hyperengineering/syncbridge/internal/types"
)

// BindingService is the binding type for clients registered by name.
const BindingService = "service"

// SyncSource returns synchronization definitions by ID.
type SyncSource interface {
	Get(id string) (*types.Sync, error)
}

// Factory builds the client object for a binding. It returns any so the
// resolver can check the result against the Client capability.
type Factory func(s *types.Sync, binding types.ClientBinding) (any, error)

// Resolver resolves the remote client bound to a synchronization.
type Resolver struct {
	defs SyncSource

	mu        sync.RWMutex
	factories map[string]Factory
	services  map[string]any
}

// NewResolver creates a resolver with the service backend registered.
func NewResolver(defs SyncSource) *Resolver {
	r := &Resolver{
		defs:      defs,
		factories: make(map[string]Factory),
		services:  make(map[string]any),
	}
	r.RegisterBackend(BindingService, r.service)
	return r
}

// RegisterBackend registers the factory for a binding type, replacing any
// previous factory for the same type.
func (r *Resolver) RegisterBackend(bindingType string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[bindingType] = f
}

// RegisterService registers a named client object for service bindings.
func (r *Resolver) RegisterService(name string, svc any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.services[name] = svc
}

// Backends returns the registered binding types, sorted.
func (r *Resolver) Backends() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for t := range r.factories {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Client returns the remote client of a synchronization.
func (r *Resolver) Client(ctx context.Context, syncID string) (Client, error) {
	s, err := r.defs.Get(syncID)
	if err != nil {
		return nil, err
	}
	return r.ClientFor(s, nil)
}

// ClientFor returns the client for binding, or for the synchronization's own
// binding when binding is nil or zero.
func (r *Resolver) ClientFor(s *types.Sync, binding *types.ClientBinding) (Client, error) {
	b := s.RemoteResource.Client
	if binding != nil && !binding.IsZero() {
		b = *binding
	}
	if b.IsZero() {
		return nil, fmt.Errorf("%w: %s", ErrNoClientBinding, s.ID)
	}
	if b.Type == "" {
		b.Type = BindingService
	}

	r.mu.RLock()
	f, ok := r.factories[b.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (sync %s)", ErrUnsupportedClient, b.Type, s.ID)
	}

	obj, err := f(s, b)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidClient, s.ID, err)
	}
	c, ok := obj.(Client)
	if !ok || c == nil {
		return nil, fmt.Errorf("%w: %s: %T does not implement the client capability", ErrInvalidClient, s.ID, obj)
	}
	return c, nil
}

func (r *Resolver) service(s *types.Sync, b types.ClientBinding) (any, error) {
	if b.Name == "" {
		return nil, fmt.Errorf("service binding requires a name")
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	svc, ok := r.services[b.Name]
	if !ok {
		return nil, fmt.Errorf("no service registered as %q", b.Name)
	}
	return svc, nil
}
