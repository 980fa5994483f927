// Package memory is an exact, brute-force VectorStore held in process memory.
// The persisted backends (faiss_local, aws_s3_faiss) reuse it through
// Snapshot and Restore.
package memory

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"sync"

	"github.com/wilhg/agentcore/pkg/adapters/vectorstore"
	"github.com/wilhg/agentcore/pkg/config"
	"github.com/wilhg/agentcore/pkg/errmodel"
)

// Store is an in-memory VectorStore using cosine similarity.
type Store struct {
	mu     sync.RWMutex
	byNSID map[string]map[string]vectorstore.Item // namespace -> id -> item
}

var _ vectorstore.VectorStore = (*Store)(nil)

// New creates a new in-memory store.
func New() *Store {
	return &Store{byNSID: make(map[string]map[string]vectorstore.Item)}
}

// Upsert inserts or replaces items.
func (s *Store) Upsert(ctx context.Context, items []vectorstore.Item) error {
	if err := vectorstore.CheckItems("memory", items); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range items {
		it.Namespace = vectorstore.Namespace(it.Namespace)
		bucket, ok := s.byNSID[it.Namespace]
		if !ok {
			bucket = make(map[string]vectorstore.Item)
			s.byNSID[it.Namespace] = bucket
		}
		bucket[it.ID] = it
	}
	return nil
}

// Query performs cosine similarity search with optional namespace and metadata equality filter.
// Ties are broken by ID so results are stable.
func (s *Store) Query(ctx context.Context, query vectorstore.Vector, k int, filter vectorstore.Filter) ([]vectorstore.Match, error) {
	qnorm := dot(query, query)
	if qnorm == 0 {
		return nil, errmodel.Validation("zero_query", "memory: zero-norm query vector", nil)
	}
	qnorm = math.Sqrt(qnorm)

	s.mu.RLock()
	bucket := s.byNSID[vectorstore.Namespace(filter.Namespace)]
	matches := make([]vectorstore.Match, 0, len(bucket))
	for _, it := range bucket {
		if !vectorstore.MetaEquals(it.Metadata, filter.Equals) {
			continue
		}
		if len(it.Vector) != len(query) {
			continue
		}
		matches = append(matches, vectorstore.Match{Item: it, Score: cosine(query, it.Vector, qnorm)})
	}
	s.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Item.ID < matches[j].Item.ID
	})
	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// Delete removes ids from namespace.
func (s *Store) Delete(ctx context.Context, namespace string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ns := vectorstore.Namespace(namespace)
	bucket := s.byNSID[ns]
	for _, id := range ids {
		delete(bucket, id)
	}
	if len(bucket) == 0 {
		delete(s.byNSID, ns)
	}
	return nil
}

// Len returns the number of stored items across namespaces.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, b := range s.byNSID {
		n += len(b)
	}
	return n
}

type snapshotItem struct {
	ID        string         `json:"id"`
	Namespace string         `json:"namespace"`
	Vector    []float32      `json:"vector"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type snapshot struct {
	Version int            `json:"version"`
	Items   []snapshotItem `json:"items"`
}

// Snapshot serializes every item as JSON, ordered by namespace then ID.
func (s *Store) Snapshot() ([]byte, error) {
	s.mu.RLock()
	snap := snapshot{Version: 1, Items: []snapshotItem{}}
	for ns, bucket := range s.byNSID {
		for _, it := range bucket {
			snap.Items = append(snap.Items, snapshotItem{ID: it.ID, Namespace: ns, Vector: it.Vector, Metadata: it.Metadata})
		}
	}
	s.mu.RUnlock()
	sort.Slice(snap.Items, func(i, j int) bool {
		a, b := snap.Items[i], snap.Items[j]
		if a.Namespace != b.Namespace {
			return a.Namespace < b.Namespace
		}
		return a.ID < b.ID
	})
	b, err := json.Marshal(snap)
	if err != nil {
		return nil, errmodel.System("snapshot_failed", "memory: cannot encode snapshot", nil, err)
	}
	return b, nil
}

// Restore replaces the store contents with a Snapshot.
func (s *Store) Restore(data []byte) error {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return errmodel.Load("corrupt_index", "memory: cannot decode snapshot", nil, err)
	}
	fresh := make(map[string]map[string]vectorstore.Item)
	for _, it := range snap.Items {
		ns := vectorstore.Namespace(it.Namespace)
		if fresh[ns] == nil {
			fresh[ns] = make(map[string]vectorstore.Item)
		}
		fresh[ns][it.ID] = vectorstore.Item{ID: it.ID, Namespace: ns, Vector: it.Vector, Metadata: it.Metadata}
	}
	s.mu.Lock()
	s.byNSID = fresh
	s.mu.Unlock()
	return nil
}

func cosine(a, b vectorstore.Vector, qnorm float64) float32 {
	denom := qnorm * math.Sqrt(dot(b, b))
	if denom == 0 {
		return 0
	}
	return float32(dot(a, b) / denom)
}

func dot(a, b vectorstore.Vector) float64 {
	n := min(len(a), len(b))
	var s float64
	for i := 0; i < n; i++ {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

// Factory builds the "memory" backend. Contents live as long as the handle.
func Factory(ctx context.Context, cfg *config.Config) (vectorstore.VectorStore, error) {
	return New(), nil
}

func init() {
	_ = vectorstore.Register("memory", Factory)
}
