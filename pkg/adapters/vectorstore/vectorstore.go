// Package vectorstore defines similarity storage over embedding vectors and the
// registry of backends that construct it from a *config.Config.
package vectorstore

import (
	"context"
	"reflect"
	"sort"
	"sync"

	"github.com/wilhg/agentcore/pkg/config"
	"github.com/wilhg/agentcore/pkg/errmodel"
)

// DefaultNamespace is used when an item or filter leaves Namespace empty.
const DefaultNamespace = "default"

// Vector is a single dense embedding vector.
type Vector []float32

// Item represents a vectorized document chunk with metadata for filtering and citation.
type Item struct {
	// ID is provider-assigned or caller-provided unique identifier for the item.
	ID string
	// Namespace groups items logically (e.g., by dataset, tenant, or collection).
	Namespace string
	// Vector is the dense embedding.
	Vector Vector
	// Metadata carries arbitrary attributes for filtering (e.g., source, doc_id, tags).
	Metadata map[string]any
}

// Match is a search result with similarity score and original item.
type Match struct {
	Item  Item
	Score float32 // higher is more similar
}

// VectorStore defines upsert, similarity query and delete operations.
type VectorStore interface {
	// Upsert inserts or replaces items by ID within a namespace.
	Upsert(ctx context.Context, items []Item) error
	// Query returns top-k most similar items to the query vector, optionally filtered by namespace and metadata.
	Query(ctx context.Context, query Vector, k int, filter Filter) ([]Match, error)
	// Delete removes items by ID from a namespace. Unknown IDs are ignored.
	Delete(ctx context.Context, namespace string, ids []string) error
}

// Filter constrains query results.
type Filter struct {
	Namespace string
	// Equals matches exact key/value pairs in metadata (AND semantics across keys).
	Equals map[string]any
}

// Namespace returns ns or DefaultNamespace when ns is empty.
func Namespace(ns string) string {
	if ns == "" {
		return DefaultNamespace
	}
	return ns
}

// MetaEquals reports whether have contains every key/value pair in want.
// Numbers compare by value regardless of their Go type.
func MetaEquals(have, want map[string]any) bool {
	for k, v := range want {
		hv, ok := have[k]
		if !ok || !valueEqual(hv, v) {
			return false
		}
	}
	return true
}

func valueEqual(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}

// CheckItems rejects items without an ID or vector.
func CheckItems(store string, items []Item) error {
	for i, it := range items {
		if it.ID == "" {
			return errmodel.Validation("empty_id", store+": item has an empty id", map[string]any{"index": i})
		}
		if len(it.Vector) == 0 {
			return errmodel.Validation("empty_vector", store+": item has an empty vector", map[string]any{"index": i, "id": it.ID})
		}
	}
	return nil
}

// Factory constructs a VectorStore from the process configuration.
type Factory func(ctx context.Context, cfg *config.Config) (VectorStore, error)

var (
	regMu     sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers a VectorStore factory.
func Register(name string, f Factory) error {
	if name == "" {
		return errmodel.Validation("empty_name", "vectorstore: empty provider name", nil)
	}
	if f == nil {
		return errmodel.Validation("nil_factory", "vectorstore: nil factory", map[string]any{"provider": name})
	}
	regMu.Lock()
	defer regMu.Unlock()
	if _, exists := factories[name]; exists {
		return errmodel.Validation("duplicate_provider", "vectorstore: provider already registered", map[string]any{"provider": name})
	}
	factories[name] = f
	return nil
}

// Resolve gets a registered factory by name.
func Resolve(name string) (Factory, bool) {
	regMu.RLock()
	defer regMu.RUnlock()
	f, ok := factories[name]
	return f, ok
}

// Names returns the registered backend names in lexical order.
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

// Range iterates all registered factories in name order.
func Range(fn func(name string, f Factory)) {
	for _, n := range Names() {
		if f, ok := Resolve(n); ok {
			fn(n, f)
		}
	}
}
