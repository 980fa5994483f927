// Package embedding defines the text-embedding capability and the registry of
// providers that construct it from a *config.Config.
package embedding

import (
	"context"
	"sort"
	"sync"

	"github.com/wilhg/agentcore/pkg/config"
	"github.com/wilhg/agentcore/pkg/errmodel"
)

// Vector represents a single embedding vector.
type Vector []float32

// Embedder produces embedding vectors from text inputs.
//
// Implementations should be deterministic for the same input unless options specify
// non-deterministic behavior. All network or I/O operations must honor ctx.
type Embedder interface {
	// Name returns a short provider name (e.g., "openai", "bedrock").
	Name() string
	// Embed returns one vector per input string, in order.
	Embed(ctx context.Context, inputs []string, opts map[string]any) ([]Vector, error)
}

// Factory constructs an Embedder from the process configuration.
type Factory func(ctx context.Context, cfg *config.Config) (Embedder, error)

var (
	regMu     sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers an Embedder factory under a provider name.
func Register(name string, f Factory) error {
	if name == "" {
		return errmodel.Validation("empty_name", "embedding: empty provider name", nil)
	}
	if f == nil {
		return errmodel.Validation("nil_factory", "embedding: nil factory", map[string]any{"provider": name})
	}
	regMu.Lock()
	defer regMu.Unlock()
	if _, exists := factories[name]; exists {
		return errmodel.Validation("duplicate_provider", "embedding: provider already registered", map[string]any{"provider": name})
	}
	factories[name] = f
	return nil
}

// Resolve retrieves a registered factory by name.
func Resolve(name string) (Factory, bool) {
	regMu.RLock()
	defer regMu.RUnlock()
	f, ok := factories[name]
	return f, ok
}

// Names returns the registered provider names in lexical order.
func Names() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	names := make([]string, 0, len(factories))
	for n := range factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Range calls fn for each registered provider name and factory, in name order.
func Range(fn func(name string, f Factory)) {
	for _, n := range Names() {
		if f, ok := Resolve(n); ok {
			fn(n, f)
		}
	}
}

// CheckCount verifies a provider returned one vector per input.
func CheckCount(provider string, inputs int, got int) error {
	if inputs == got {
		return nil
	}
	return errmodel.Invocation("vector_count", "embedding provider returned an unexpected number of vectors",
		map[string]any{"provider": provider, "inputs": inputs, "vectors": got}, nil)
}
