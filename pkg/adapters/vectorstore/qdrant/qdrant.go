// Package qdrant stores vectors in a Qdrant collection through its REST API.
// Qdrant point ids must be unsigned integers or UUIDs, so item ids are mapped to
// name-based UUIDs and the original id is kept in the payload.
package qdrant

import (
	"context"
	"net/http"
	"net/url"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/wilhg/agentcore/pkg/adapters/vectorstore"
	"github.com/wilhg/agentcore/pkg/adapters/vectorstore/rest"
	"github.com/wilhg/agentcore/pkg/config"
	"github.com/wilhg/agentcore/pkg/errmodel"
)

const (
	idKey        = "_id"
	namespaceKey = "_namespace"
)

// pointSpace seeds the name-based point UUIDs.
var pointSpace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("agentcore:qdrant"))

// PointID returns the stable Qdrant point id for an item.
func PointID(namespace, id string) string {
	return uuid.NewSHA1(pointSpace, []byte(vectorstore.Namespace(namespace)+"\x00"+id)).String()
}

type Store struct {
	api        *rest.Client
	collection string
	distance   string

	mu    sync.Mutex
	ready bool
}

var _ vectorstore.VectorStore = (*Store)(nil)

// New builds a store for one collection.
func New(baseURL, apiKey, collection, distance string) (*Store, error) {
	api, err := rest.New("qdrant", baseURL)
	if err != nil {
		return nil, err
	}
	if apiKey != "" {
		api.Header.Set("Api-Key", apiKey)
	}
	if collection == "" {
		collection = "agentcore"
	}
	if distance == "" {
		distance = "Cosine"
	}
	return &Store{api: api, collection: collection, distance: distance}, nil
}

// LocalFactory builds "qdrant_local".
func LocalFactory(ctx context.Context, cfg *config.Config) (vectorstore.VectorStore, error) {
	qc := cfg.VectorStore.Qdrant
	base := qc.URL
	if base == "" {
		base = "http://localhost:6333"
	}
	return New(base, qc.APIKey, cfg.VectorStore.Collection, qc.Distance)
}

// CloudFactory builds "qdrant_cloud". It requires a cluster URL and an API key.
func CloudFactory(ctx context.Context, cfg *config.Config) (vectorstore.VectorStore, error) {
	qc := cfg.VectorStore.Qdrant
	if qc.APIKey == "" {
		return nil, errmodel.Configuration("missing_credentials", "qdrant_cloud: API key is not configured; set QDRANT_API_KEY",
			map[string]any{"provider": "qdrant_cloud", "env": "QDRANT_API_KEY"})
	}
	if qc.URL == "" {
		return nil, errmodel.Configuration("missing_endpoint", "qdrant_cloud: cluster URL is not configured; set QDRANT_URL",
			map[string]any{"provider": "qdrant_cloud", "env": "QDRANT_URL"})
	}
	return New(qc.URL, qc.APIKey, cfg.VectorStore.Collection, qc.Distance)
}

func init() {
	_ = vectorstore.Register("qdrant_local", LocalFactory)
	_ = vectorstore.Register("qdrant_cloud", CloudFactory)
}

func (s *Store) path(suffix string) string {
	return "/collections/" + url.PathEscape(s.collection) + suffix
}

// ensureCollection creates the collection sized to dim when it does not exist.
func (s *Store) ensureCollection(ctx context.Context, dim int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}
	err := s.api.JSON(ctx, http.MethodGet, s.path(""), nil, nil)
	if rest.IsNotFound(err) {
		err = s.api.JSON(ctx, http.MethodPut, s.path(""), map[string]any{
			"vectors": map[string]any{"size": dim, "distance": s.distance},
		}, nil)
	}
	if err != nil {
		return err
	}
	s.ready = true
	return nil
}

type point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

func (s *Store) Upsert(ctx context.Context, items []vectorstore.Item) error {
	if len(items) == 0 {
		return nil
	}
	if err := vectorstore.CheckItems("qdrant", items); err != nil {
		return err
	}
	if err := s.ensureCollection(ctx, len(items[0].Vector)); err != nil {
		return err
	}
	points := make([]point, 0, len(items))
	for _, it := range items {
		ns := vectorstore.Namespace(it.Namespace)
		payload := make(map[string]any, len(it.Metadata)+2)
		for k, v := range it.Metadata {
			payload[k] = v
		}
		payload[idKey] = it.ID
		payload[namespaceKey] = ns
		points = append(points, point{ID: PointID(ns, it.ID), Vector: it.Vector, Payload: payload})
	}
	return s.api.JSON(ctx, http.MethodPut, s.path("/points?wait=true"), map[string]any{"points": points}, nil)
}

func (s *Store) Query(ctx context.Context, query vectorstore.Vector, k int, filter vectorstore.Filter) ([]vectorstore.Match, error) {
	if k <= 0 {
		k = 10
	}
	ns := vectorstore.Namespace(filter.Namespace)
	must := []map[string]any{{"key": namespaceKey, "match": map[string]any{"value": ns}}}
	keys := make([]string, 0, len(filter.Equals))
	for key := range filter.Equals {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		must = append(must, map[string]any{"key": key, "match": map[string]any{"value": filter.Equals[key]}})
	}
	var resp struct {
		Result []struct {
			ID      any            `json:"id"`
			Score   float32        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	err := s.api.JSON(ctx, http.MethodPost, s.path("/points/search"), map[string]any{
		"vector":       query,
		"limit":        k,
		"with_payload": true,
		"filter":       map[string]any{"must": must},
	}, &resp)
	if rest.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out := make([]vectorstore.Match, 0, len(resp.Result))
	for _, r := range resp.Result {
		id, _ := r.Payload[idKey].(string)
		delete(r.Payload, idKey)
		delete(r.Payload, namespaceKey)
		out = append(out, vectorstore.Match{
			Item:  vectorstore.Item{ID: id, Namespace: ns, Metadata: r.Payload},
			Score: r.Score,
		})
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, namespace string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	points := make([]string, len(ids))
	for i, id := range ids {
		points[i] = PointID(namespace, id)
	}
	err := s.api.JSON(ctx, http.MethodPost, s.path("/points/delete?wait=true"), map[string]any{"points": points}, nil)
	if rest.IsNotFound(err) {
		return nil
	}
	return err
}
