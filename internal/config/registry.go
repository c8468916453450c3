package config

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/readalong/internal/resilience"
	"github.com/MrWong99/readalong/pkg/provider/stt"
)

// ErrProviderNotRegistered is returned by [Registry.CreateSTT] when no
// factory has been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// STTFactory constructs an STT provider from its configuration entry.
type STTFactory func(ctx context.Context, entry ProviderEntry) (stt.Provider, error)

// Registry maps provider names to their constructor functions. It is safe for
// concurrent use.
type Registry struct {
	mu  sync.RWMutex
	stt map[string]STTFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{stt: make(map[string]STTFactory)}
}

// RegisterSTT registers an STT provider factory under name. Subsequent calls
// with the same name overwrite the previous registration.
func (r *Registry) RegisterSTT(name string, factory STTFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = factory
}

// STTNames returns the registered provider names in sorted order.
func (r *Registry) STTNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.stt))
	for n := range r.stt {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// CreateSTT instantiates the provider registered under entry.Name.
func (r *Registry) CreateSTT(ctx context.Context, entry ProviderEntry) (stt.Provider, error) {
	r.mu.RLock()
	factory, ok := r.stt[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: stt/%q", ErrProviderNotRegistered, entry.Name)
	}
	p, err := factory(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("config: create stt/%q: %w", entry.Name, err)
	}
	return p, nil
}

// BuildRecognizer creates the primary provider and, when fallback providers
// are configured, wraps them all in a circuit-breaking failover group.
func (r *Registry) BuildRecognizer(ctx context.Context, cfg *Config, opts ...resilience.STTOption) (stt.Provider, error) {
	primary, err := r.CreateSTT(ctx, cfg.Recognition.Provider)
	if err != nil {
		return nil, err
	}
	if len(cfg.Recognition.FallbackProviders) == 0 {
		return primary, nil
	}

	group := resilience.NewSTTFallback(primary, cfg.Recognition.Provider.Name, cfg.FallbackConfig(), opts...)
	for _, entry := range cfg.Recognition.FallbackProviders {
		p, err := r.CreateSTT(ctx, entry)
		if err != nil {
			return nil, err
		}
		group.AddFallback(entry.Name, p)
	}
	return group, nil
}
