// Package provider defines the reasoning-provider contract consumed by the
// consensus runner and phase handlers. Concrete clients live outside the
// pipeline; they register completion functions keyed by provider and model.
package provider

import (
	"context"
	"fmt"
	"sync"
)

// Request is a single completion request.
type Request struct {
	Prompt       string
	SystemPrompt string
	Temperature  float64
}

// Provider returns a text completion for a request. Failure surfaces as a
// single error.
type Provider interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Func adapts a function to the Provider interface.
type Func func(ctx context.Context, req Request) (string, error)

// Complete implements Provider.
func (f Func) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// Key identifies a registered provider.
type Key struct {
	Provider string
	Model    string
}

func (k Key) String() string {
	return k.Provider + "/" + k.Model
}

// Registry maps provider keys to clients. Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	providers map[Key]Provider
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[Key]Provider)}
}

// Register adds or replaces a provider.
func (r *Registry) Register(key Key, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[key] = p
}

// Lookup returns the provider for a key.
func (r *Registry) Lookup(key Key) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[key]
	if !ok {
		return nil, fmt.Errorf("no provider registered for %s", key)
	}
	return p, nil
}
