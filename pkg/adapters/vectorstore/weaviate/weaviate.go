// Package weaviate stores vectors in a Weaviate class through its REST and
// GraphQL APIs. Vectors are supplied by the caller; the class has no vectorizer.
package weaviate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/google/uuid"

	"github.com/wilhg/agentcore/pkg/adapters/vectorstore"
	"github.com/wilhg/agentcore/pkg/adapters/vectorstore/rest"
	"github.com/wilhg/agentcore/pkg/config"
	"github.com/wilhg/agentcore/pkg/errmodel"
)

// Property names on every object.
const (
	propID        = "itemId"
	propNamespace = "namespace"
	propMetadata  = "metadata"
)

// filterWindow is how many candidates are fetched per requested match when
// metadata filters apply. Metadata is stored as JSON text, so equality is
// checked after the vector search.
const filterWindow = 10

var objectSpace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("agentcore:weaviate"))

// ObjectID returns the stable Weaviate object id for an item.
func ObjectID(namespace, id string) string {
	return uuid.NewSHA1(objectSpace, []byte(vectorstore.Namespace(namespace)+"\x00"+id)).String()
}

// ClassName maps a collection name onto a valid Weaviate class name: letters
// and digits only, starting with an upper-case letter.
func ClassName(collection string) string {
	var b strings.Builder
	upper := true
	for _, r := range collection {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			upper = true
			continue
		}
		if upper {
			r = unicode.ToUpper(r)
			upper = false
		}
		b.WriteRune(r)
	}
	name := b.String()
	if name == "" || !unicode.IsLetter(rune(name[0])) {
		name = "C" + name
	}
	return name
}

type Store struct {
	api   *rest.Client
	class string

	mu    sync.Mutex
	ready bool
}

var _ vectorstore.VectorStore = (*Store)(nil)

// New builds a store for the class derived from collection.
func New(baseURL, apiKey, collection string) (*Store, error) {
	api, err := rest.New("weaviate", baseURL)
	if err != nil {
		return nil, err
	}
	if apiKey != "" {
		api.Header.Set("Authorization", "Bearer "+apiKey)
	}
	if collection == "" {
		collection = "agentcore"
	}
	return &Store{api: api, class: ClassName(collection)}, nil
}

// Factory builds "weaviate".
func Factory(ctx context.Context, cfg *config.Config) (vectorstore.VectorStore, error) {
	wc := cfg.VectorStore.Weaviate
	if wc.URL == "" {
		return nil, errmodel.Configuration("missing_endpoint", "weaviate: URL is not configured; set WEAVIATE_URL",
			map[string]any{"provider": "weaviate", "env": "WEAVIATE_URL"})
	}
	return New(wc.URL, wc.APIKey, cfg.VectorStore.Collection)
}

func init() {
	_ = vectorstore.Register("weaviate", Factory)
}

func (s *Store) ensureClass(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}
	err := s.api.JSON(ctx, http.MethodGet, "/v1/schema/"+url.PathEscape(s.class), nil, nil)
	if rest.IsNotFound(err) {
		err = s.api.JSON(ctx, http.MethodPost, "/v1/schema", map[string]any{
			"class":             s.class,
			"vectorizer":        "none",
			"vectorIndexConfig": map[string]any{"distance": "cosine"},
			"properties": []map[string]any{
				{"name": propID, "dataType": []string{"text"}, "tokenization": "field"},
				{"name": propNamespace, "dataType": []string{"text"}, "tokenization": "field"},
				{"name": propMetadata, "dataType": []string{"text"}, "indexFilterable": false, "indexSearchable": false},
			},
		}, nil)
	}
	if err != nil {
		return err
	}
	s.ready = true
	return nil
}

type batchResult struct {
	ID     string `json:"id"`
	Result struct {
		Errors *struct {
			Error []struct {
				Message string `json:"message"`
			} `json:"error"`
		} `json:"errors"`
	} `json:"result"`
}

func (s *Store) Upsert(ctx context.Context, items []vectorstore.Item) error {
	if len(items) == 0 {
		return nil
	}
	if err := vectorstore.CheckItems("weaviate", items); err != nil {
		return err
	}
	if err := s.ensureClass(ctx); err != nil {
		return err
	}
	objects := make([]map[string]any, 0, len(items))
	for _, it := range items {
		ns := vectorstore.Namespace(it.Namespace)
		md := "{}"
		if len(it.Metadata) > 0 {
			b, err := json.Marshal(it.Metadata)
			if err != nil {
				return errmodel.Value("invalid_metadata", "weaviate: metadata is not JSON-serializable", map[string]any{"id": it.ID})
			}
			md = string(b)
		}
		objects = append(objects, map[string]any{
			"class":  s.class,
			"id":     ObjectID(ns, it.ID),
			"vector": it.Vector,
			"properties": map[string]any{
				propID:        it.ID,
				propNamespace: ns,
				propMetadata:  md,
			},
		})
	}
	var results []batchResult
	if err := s.api.JSON(ctx, http.MethodPost, "/v1/batch/objects", map[string]any{"objects": objects}, &results); err != nil {
		return err
	}
	for _, r := range results {
		if r.Result.Errors != nil && len(r.Result.Errors.Error) > 0 {
			return errmodel.Invocation("batch_failed", "weaviate: batch upsert rejected an object",
				map[string]any{"object": r.ID, "error": r.Result.Errors.Error[0].Message}, nil)
		}
	}
	return nil
}

type hit struct {
	ItemID     string `json:"itemId"`
	Metadata   string `json:"metadata"`
	Additional struct {
		Distance *float64 `json:"distance"`
	} `json:"_additional"`
}

func (s *Store) searchQuery(query vectorstore.Vector, limit int, ns string) string {
	vec := make([]string, len(query))
	for i, f := range query {
		vec[i] = strconv.FormatFloat(float64(f), 'g', -1, 32)
	}
	nsLit, _ := json.Marshal(ns)
	return fmt.Sprintf(`{ Get { %s(nearVector: {vector: [%s]}, limit: %d, where: {path: ["%s"], operator: Equal, valueText: %s}) { %s %s _additional { distance } } } }`,
		s.class, strings.Join(vec, ","), limit, propNamespace, nsLit, propID, propMetadata)
}

func (s *Store) Query(ctx context.Context, query vectorstore.Vector, k int, filter vectorstore.Filter) ([]vectorstore.Match, error) {
	if k <= 0 {
		k = 10
	}
	ns := vectorstore.Namespace(filter.Namespace)
	limit := k
	if len(filter.Equals) > 0 {
		limit = k * filterWindow
	}
	var resp struct {
		Data struct {
			Get map[string][]hit `json:"Get"`
		} `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := s.api.JSON(ctx, http.MethodPost, "/v1/graphql", map[string]any{"query": s.searchQuery(query, limit, ns)}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Errors) > 0 {
		msg := resp.Errors[0].Message
		// a class that was never written has no schema yet
		if strings.Contains(msg, "Cannot query field") {
			return nil, nil
		}
		return nil, errmodel.Invocation("graphql_error", "weaviate: query failed", map[string]any{"error": msg}, nil)
	}
	out := make([]vectorstore.Match, 0, k)
	for _, h := range resp.Data.Get[s.class] {
		md := map[string]any{}
		if h.Metadata != "" {
			if err := json.Unmarshal([]byte(h.Metadata), &md); err != nil {
				return nil, errmodel.Invocation("decode_failed", "weaviate: stored metadata is not JSON", map[string]any{"id": h.ItemID}, err)
			}
		}
		if !vectorstore.MetaEquals(md, filter.Equals) {
			continue
		}
		var score float32
		if h.Additional.Distance != nil {
			score = float32(1 - *h.Additional.Distance)
		}
		out = append(out, vectorstore.Match{Item: vectorstore.Item{ID: h.ItemID, Namespace: ns, Metadata: md}, Score: score})
		if len(out) == k {
			break
		}
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, namespace string, ids []string) error {
	for _, id := range ids {
		err := s.api.JSON(ctx, http.MethodDelete, "/v1/objects/"+url.PathEscape(s.class)+"/"+ObjectID(namespace, id), nil, nil)
		if err != nil && !rest.IsNotFound(err) {
			return err
		}
	}
	return nil
}
