// Package chromadb stores vectors in a Chroma server (self-hosted or Chroma
// Cloud) through its v2 REST API. All namespaces share one collection; the
// namespace is kept in item metadata.
package chromadb

import (
	"context"
	"net/http"
	"net/url"
	"sync"

	"github.com/wilhg/agentcore/pkg/adapters/vectorstore"
	"github.com/wilhg/agentcore/pkg/adapters/vectorstore/rest"
	"github.com/wilhg/agentcore/pkg/config"
	"github.com/wilhg/agentcore/pkg/errmodel"
)

// CloudURL is the Chroma Cloud endpoint used by chroma_cloud when no custom URL is set.
const CloudURL = "https://api.trychroma.com"

// LocalURL is the default self-hosted Chroma endpoint.
const LocalURL = "http://localhost:8000"

// namespaceKey holds the item namespace in Chroma metadata.
const namespaceKey = "_namespace"

// Options controls the ChromaDB adapter behavior.
type Options struct {
	BaseURL    string
	APIKey     string
	Tenant     string
	Database   string
	Collection string
	// CreateIfMissing creates the collection on first use. Default true.
	CreateIfMissing bool
}

type Store struct {
	api        *rest.Client
	collection string
	autoCreate bool
	prefix     string

	mu     sync.Mutex
	collID string
}

var _ vectorstore.VectorStore = (*Store)(nil)

// New builds a store from explicit options.
func New(opts Options) (*Store, error) {
	api, err := rest.New("chromadb", opts.BaseURL)
	if err != nil {
		return nil, err
	}
	if opts.APIKey != "" {
		api.Header.Set("X-Chroma-Token", opts.APIKey)
	}
	tenant, db := opts.Tenant, opts.Database
	if tenant == "" {
		tenant = "default_tenant"
	}
	if db == "" {
		db = "default_database"
	}
	coll := opts.Collection
	if coll == "" {
		coll = "agentcore"
	}
	return &Store{
		api:        api,
		collection: coll,
		autoCreate: opts.CreateIfMissing,
		prefix:     "/api/v2/tenants/" + url.PathEscape(tenant) + "/databases/" + url.PathEscape(db) + "/collections",
	}, nil
}

func optionsFrom(cfg *config.Config, baseURL string) Options {
	cc := cfg.VectorStore.Chroma
	create := true
	if cc.CreateIfMissing != nil {
		create = *cc.CreateIfMissing
	}
	return Options{
		BaseURL:         baseURL,
		APIKey:          cc.APIKey,
		Tenant:          cc.Tenant,
		Database:        cc.Database,
		Collection:      cfg.VectorStore.Collection,
		CreateIfMissing: create,
	}
}

// LocalFactory builds "chroma_local" against cfg.VectorStore.Chroma.URL.
func LocalFactory(ctx context.Context, cfg *config.Config) (vectorstore.VectorStore, error) {
	base := cfg.VectorStore.Chroma.URL
	if base == "" {
		base = LocalURL
	}
	return New(optionsFrom(cfg, base))
}

// CloudFactory builds "chroma_cloud". It requires an API key.
func CloudFactory(ctx context.Context, cfg *config.Config) (vectorstore.VectorStore, error) {
	cc := cfg.VectorStore.Chroma
	if cc.APIKey == "" {
		return nil, errmodel.Configuration("missing_credentials", "chroma_cloud: API key is not configured; set CHROMA_API_KEY",
			map[string]any{"provider": "chroma_cloud", "env": "CHROMA_API_KEY"})
	}
	base := cc.URL
	if base == "" || base == LocalURL {
		base = CloudURL
	}
	return New(optionsFrom(cfg, base))
}

func init() {
	_ = vectorstore.Register("chroma_local", LocalFactory)
	_ = vectorstore.Register("chroma_cloud", CloudFactory)
}

func (s *Store) Upsert(ctx context.Context, items []vectorstore.Item) error {
	if len(items) == 0 {
		return nil
	}
	if err := vectorstore.CheckItems("chromadb", items); err != nil {
		return err
	}
	id, err := s.ensureCollection(ctx)
	if err != nil {
		return err
	}
	payload := upsertRequest{
		IDs:        make([]string, 0, len(items)),
		Embeddings: make([][]float32, 0, len(items)),
		Metadatas:  make([]map[string]any, 0, len(items)),
	}
	for _, it := range items {
		ns := vectorstore.Namespace(it.Namespace)
		md := make(map[string]any, len(it.Metadata)+1)
		for k, v := range it.Metadata {
			md[k] = v
		}
		md[namespaceKey] = ns
		payload.IDs = append(payload.IDs, docID(ns, it.ID))
		payload.Embeddings = append(payload.Embeddings, []float32(it.Vector))
		payload.Metadatas = append(payload.Metadatas, md)
	}
	return s.api.JSON(ctx, http.MethodPost, s.prefix+"/"+id+"/upsert", payload, nil)
}

func (s *Store) Query(ctx context.Context, query vectorstore.Vector, k int, filter vectorstore.Filter) ([]vectorstore.Match, error) {
	id, err := s.ensureCollection(ctx)
	if err != nil {
		if rest.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	if k <= 0 {
		k = 10
	}
	ns := vectorstore.Namespace(filter.Namespace)
	payload := queryRequest{
		QueryEmbeddings: [][]float32{[]float32(query)},
		NResults:        k,
		Where:           where(ns, filter.Equals),
		Include:         []string{"distances", "metadatas"},
	}
	var resp queryResponse
	if err := s.api.JSON(ctx, http.MethodPost, s.prefix+"/"+id+"/query", payload, &resp); err != nil {
		return nil, err
	}
	// Response fields are nested per query; we sent 1 query, so index 0.
	if len(resp.IDs) == 0 {
		return nil, nil
	}
	ids := resp.IDs[0]
	var dists []float32
	if len(resp.Distances) > 0 {
		dists = resp.Distances[0]
	}
	var metas []map[string]any
	if len(resp.Metadatas) > 0 {
		metas = resp.Metadatas[0]
	}
	out := make([]vectorstore.Match, 0, len(ids))
	for i := range ids {
		var md map[string]any
		if i < len(metas) && metas[i] != nil {
			md = metas[i]
			delete(md, namespaceKey)
		}
		score := float32(0)
		if i < len(dists) {
			score = -dists[i] // invert distance so higher is more similar
		}
		out = append(out, vectorstore.Match{
			Item:  vectorstore.Item{ID: itemID(ns, ids[i]), Namespace: ns, Metadata: md},
			Score: score,
		})
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, namespace string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	id, err := s.ensureCollection(ctx)
	if err != nil {
		if rest.IsNotFound(err) {
			return nil
		}
		return err
	}
	ns := vectorstore.Namespace(namespace)
	docIDs := make([]string, len(ids))
	for i, v := range ids {
		docIDs[i] = docID(ns, v)
	}
	return s.api.JSON(ctx, http.MethodPost, s.prefix+"/"+id+"/delete", deleteRequest{IDs: docIDs}, nil)
}

// docID scopes ids by namespace since namespaces share a collection.
func docID(ns, id string) string { return ns + "/" + id }

func itemID(ns, doc string) string {
	if len(doc) > len(ns) && doc[:len(ns)+1] == ns+"/" {
		return doc[len(ns)+1:]
	}
	return doc
}

func where(ns string, equals map[string]any) map[string]any {
	conds := []map[string]any{{namespaceKey: map[string]any{"$eq": ns}}}
	for k, v := range equals {
		conds = append(conds, map[string]any{k: map[string]any{"$eq": v}})
	}
	if len(conds) == 1 {
		return conds[0]
	}
	return map[string]any{"$and": conds}
}

func (s *Store) ensureCollection(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.collID != "" {
		return s.collID, nil
	}
	var c collection
	var err error
	if s.autoCreate {
		err = s.api.JSON(ctx, http.MethodPost, s.prefix, createCollectionRequest{Name: s.collection, GetOrCreate: true}, &c)
	} else {
		err = s.api.JSON(ctx, http.MethodGet, s.prefix+"/"+url.PathEscape(s.collection), nil, &c)
	}
	if err != nil {
		return "", err
	}
	if c.ID == "" {
		return "", errmodel.Invocation("decode_failed", "chromadb: collection response has no id",
			map[string]any{"collection": s.collection}, nil)
	}
	s.collID = c.ID
	return c.ID, nil
}

type collection struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type createCollectionRequest struct {
	Name        string `json:"name"`
	GetOrCreate bool   `json:"get_or_create"`
}

type upsertRequest struct {
	IDs        []string         `json:"ids"`
	Embeddings [][]float32      `json:"embeddings"`
	Metadatas  []map[string]any `json:"metadatas"`
}

type deleteRequest struct {
	IDs []string `json:"ids"`
}

type queryRequest struct {
	QueryEmbeddings [][]float32    `json:"query_embeddings"`
	NResults        int            `json:"n_results"`
	Where           map[string]any `json:"where,omitempty"`
	Include         []string       `json:"include,omitempty"`
}

type queryResponse struct {
	IDs       [][]string         `json:"ids"`
	Distances [][]float32        `json:"distances"`
	Metadatas [][]map[string]any `json:"metadatas"`
}
