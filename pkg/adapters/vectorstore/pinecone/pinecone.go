// Package pinecone stores vectors in a Pinecone index through the data-plane
// REST API. The index must already exist; its host is taken from the
// configuration.
package pinecone

import (
	"context"
	"net/http"

	"github.com/wilhg/agentcore/pkg/adapters/vectorstore"
	"github.com/wilhg/agentcore/pkg/adapters/vectorstore/rest"
	"github.com/wilhg/agentcore/pkg/config"
	"github.com/wilhg/agentcore/pkg/errmodel"
)

// APIVersion is sent as X-Pinecone-API-Version.
const APIVersion = "2025-01"

type Store struct {
	api              *rest.Client
	defaultNamespace string
}

var _ vectorstore.VectorStore = (*Store)(nil)

// New builds a store against an index host such as my-index-abc123.svc.pinecone.io.
func New(host, apiKey, namespace string) (*Store, error) {
	api, err := rest.New("pinecone", host)
	if err != nil {
		return nil, err
	}
	api.Header.Set("Api-Key", apiKey)
	api.Header.Set("X-Pinecone-API-Version", APIVersion)
	return &Store{api: api, defaultNamespace: namespace}, nil
}

// Factory builds the "pinecone" backend. Both the API key and index host are required.
func Factory(ctx context.Context, cfg *config.Config) (vectorstore.VectorStore, error) {
	pc := cfg.VectorStore.Pinecone
	if pc.APIKey == "" {
		return nil, errmodel.Configuration("missing_credentials", "pinecone: API key is not configured; set PINECONE_API_KEY",
			map[string]any{"provider": "pinecone", "env": "PINECONE_API_KEY"})
	}
	if pc.Host == "" {
		return nil, errmodel.Configuration("missing_endpoint", "pinecone: index host is not configured; set PINECONE_HOST",
			map[string]any{"provider": "pinecone", "env": "PINECONE_HOST"})
	}
	return New(pc.Host, pc.APIKey, pc.Namespace)
}

func init() {
	_ = vectorstore.Register("pinecone", Factory)
}

// namespace maps an item namespace to a Pinecone namespace. Empty falls back
// to the configured namespace, then to the default.
func (s *Store) namespace(ns string) string {
	if ns == "" {
		ns = s.defaultNamespace
	}
	return vectorstore.Namespace(ns)
}

type record struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (s *Store) Upsert(ctx context.Context, items []vectorstore.Item) error {
	if len(items) == 0 {
		return nil
	}
	if err := vectorstore.CheckItems("pinecone", items); err != nil {
		return err
	}
	byNS := map[string][]record{}
	var order []string
	for _, it := range items {
		ns := s.namespace(it.Namespace)
		if _, ok := byNS[ns]; !ok {
			order = append(order, ns)
		}
		byNS[ns] = append(byNS[ns], record{ID: it.ID, Values: it.Vector, Metadata: it.Metadata})
	}
	for _, ns := range order {
		err := s.api.JSON(ctx, http.MethodPost, "/vectors/upsert", map[string]any{"vectors": byNS[ns], "namespace": ns}, nil)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Query(ctx context.Context, query vectorstore.Vector, k int, filter vectorstore.Filter) ([]vectorstore.Match, error) {
	if k <= 0 {
		k = 10
	}
	ns := s.namespace(filter.Namespace)
	req := map[string]any{
		"vector":          query,
		"topK":            k,
		"namespace":       ns,
		"includeMetadata": true,
	}
	if len(filter.Equals) > 0 {
		f := make(map[string]any, len(filter.Equals))
		for key, v := range filter.Equals {
			f[key] = map[string]any{"$eq": v}
		}
		req["filter"] = f
	}
	var resp struct {
		Matches []struct {
			ID       string         `json:"id"`
			Score    float32        `json:"score"`
			Metadata map[string]any `json:"metadata"`
		} `json:"matches"`
	}
	if err := s.api.JSON(ctx, http.MethodPost, "/query", req, &resp); err != nil {
		return nil, err
	}
	out := make([]vectorstore.Match, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		out = append(out, vectorstore.Match{
			Item:  vectorstore.Item{ID: m.ID, Namespace: ns, Metadata: m.Metadata},
			Score: m.Score,
		})
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, namespace string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.api.JSON(ctx, http.MethodPost, "/vectors/delete", map[string]any{"ids": ids, "namespace": s.namespace(namespace)}, nil)
}
