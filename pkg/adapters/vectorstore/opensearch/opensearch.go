// Package opensearch stores vectors in an Amazon OpenSearch k-NN index. Every
// request is signed with SigV4 using the Bedrock credential settings.
package opensearch

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"

	"github.com/wilhg/agentcore/pkg/adapters/awsutil"
	"github.com/wilhg/agentcore/pkg/adapters/vectorstore"
	"github.com/wilhg/agentcore/pkg/adapters/vectorstore/rest"
	"github.com/wilhg/agentcore/pkg/config"
	"github.com/wilhg/agentcore/pkg/errmodel"
)

// contentKey is copied from metadata into the indexed content field.
const contentKey = "text"

type Store struct {
	api         *rest.Client
	index       string
	vectorField string

	mu    sync.Mutex
	ready bool
}

var _ vectorstore.VectorStore = (*Store)(nil)

// Signer returns a rest.Signer that signs requests for service in region.
func Signer(creds aws.CredentialsProvider, service, region string) rest.Signer {
	signer := v4.NewSigner()
	return func(req *http.Request, body []byte) error {
		c, err := creds.Retrieve(req.Context())
		if err != nil {
			return err
		}
		sum := sha256.Sum256(body)
		hash := hex.EncodeToString(sum[:])
		req.Header.Set("X-Amz-Content-Sha256", hash)
		return signer.SignHTTP(req.Context(), c, req, hash, service, region, time.Now())
	}
}

// Factory builds "aws_opensearch". The endpoint is required; the index is the
// configured collection name.
func Factory(ctx context.Context, cfg *config.Config) (vectorstore.VectorStore, error) {
	oc := cfg.VectorStore.OpenSearch
	if oc.Endpoint == "" {
		return nil, errmodel.Configuration("missing_endpoint", "aws_opensearch: endpoint is not configured; set OPENSEARCH_ENDPOINT",
			map[string]any{"provider": "aws_opensearch", "env": "OPENSEARCH_ENDPOINT"})
	}
	ac, err := awsutil.LoadConfig(ctx, cfg.Bedrock, oc.Region)
	if err != nil {
		return nil, err
	}
	api, err := rest.New("aws_opensearch", oc.Endpoint)
	if err != nil {
		return nil, err
	}
	service := oc.Service
	if service == "" {
		service = "es"
	}
	api.Sign = Signer(ac.Credentials, service, ac.Region)
	return New(api, cfg.VectorStore.Collection, oc.VectorField), nil
}

// New builds a store over an already configured client.
func New(api *rest.Client, index, vectorField string) *Store {
	if index == "" {
		index = "agentcore"
	}
	if vectorField == "" {
		vectorField = "embedding"
	}
	return &Store{api: api, index: index, vectorField: vectorField}
}

func init() {
	_ = vectorstore.Register("aws_opensearch", Factory)
}

func (s *Store) path(suffix string) string { return "/" + url.PathEscape(s.index) + suffix }

func (s *Store) ensureIndex(ctx context.Context, dim int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}
	err := s.api.JSON(ctx, http.MethodGet, s.path(""), nil, nil)
	if rest.IsNotFound(err) {
		err = s.api.JSON(ctx, http.MethodPut, s.path(""), map[string]any{
			"settings": map[string]any{"index": map[string]any{"knn": true}},
			"mappings": map[string]any{"properties": map[string]any{
				s.vectorField: map[string]any{"type": "knn_vector", "dimension": dim},
				"item_id":     map[string]any{"type": "keyword"},
				"namespace":   map[string]any{"type": "keyword"},
				"content":     map[string]any{"type": "text"},
				"metadata":    map[string]any{"type": "object"},
			}},
		}, nil)
	}
	if err != nil {
		return err
	}
	s.ready = true
	return nil
}

func docID(ns, id string) string { return ns + "/" + id }

// bulk sends NDJSON to _bulk and fails when any item failed.
func (s *Store) bulk(ctx context.Context, lines []any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, l := range lines {
		if err := enc.Encode(l); err != nil {
			return errmodel.System("encode_failed", "aws_opensearch: cannot encode bulk body", nil, err)
		}
	}
	var resp struct {
		Errors bool             `json:"errors"`
		Items  []map[string]any `json:"items"`
	}
	if err := s.api.Do(ctx, http.MethodPost, s.path("/_bulk?refresh=true"), "application/x-ndjson", buf.Bytes(), &resp); err != nil {
		return err
	}
	if resp.Errors {
		return errmodel.Invocation("bulk_failed", "aws_opensearch: bulk request reported item failures",
			map[string]any{"index": s.index, "items": resp.Items}, nil)
	}
	return nil
}

func (s *Store) Upsert(ctx context.Context, items []vectorstore.Item) error {
	if len(items) == 0 {
		return nil
	}
	if err := vectorstore.CheckItems("aws_opensearch", items); err != nil {
		return err
	}
	if err := s.ensureIndex(ctx, len(items[0].Vector)); err != nil {
		return err
	}
	lines := make([]any, 0, 2*len(items))
	for _, it := range items {
		ns := vectorstore.Namespace(it.Namespace)
		doc := map[string]any{
			"item_id":     it.ID,
			"namespace":   ns,
			"metadata":    it.Metadata,
			s.vectorField: it.Vector,
		}
		if text, ok := it.Metadata[contentKey].(string); ok {
			doc["content"] = text
		}
		lines = append(lines, map[string]any{"index": map[string]any{"_id": docID(ns, it.ID)}}, doc)
	}
	return s.bulk(ctx, lines)
}

func (s *Store) Query(ctx context.Context, query vectorstore.Vector, k int, filter vectorstore.Filter) ([]vectorstore.Match, error) {
	if k <= 0 {
		k = 10
	}
	ns := vectorstore.Namespace(filter.Namespace)
	filters := []map[string]any{{"term": map[string]any{"namespace": ns}}}
	keys := make([]string, 0, len(filter.Equals))
	for key := range filter.Equals {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		filters = append(filters, map[string]any{"term": map[string]any{"metadata." + key: filter.Equals[key]}})
	}
	req := map[string]any{
		"size":    k,
		"_source": map[string]any{"excludes": []string{s.vectorField}},
		"query": map[string]any{"bool": map[string]any{
			"must":   []any{map[string]any{"knn": map[string]any{s.vectorField: map[string]any{"vector": query, "k": k}}}},
			"filter": filters,
		}},
	}
	var resp struct {
		Hits struct {
			Hits []struct {
				ID     string  `json:"_id"`
				Score  float32 `json:"_score"`
				Source struct {
					ItemID   string         `json:"item_id"`
					Metadata map[string]any `json:"metadata"`
				} `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	err := s.api.JSON(ctx, http.MethodPost, s.path("/_search"), req, &resp)
	if rest.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out := make([]vectorstore.Match, 0, len(resp.Hits.Hits))
	for _, h := range resp.Hits.Hits {
		out = append(out, vectorstore.Match{
			Item:  vectorstore.Item{ID: h.Source.ItemID, Namespace: ns, Metadata: h.Source.Metadata},
			Score: h.Score,
		})
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, namespace string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	ns := vectorstore.Namespace(namespace)
	lines := make([]any, 0, len(ids))
	for _, id := range ids {
		lines = append(lines, map[string]any{"delete": map[string]any{"_id": docID(ns, id)}})
	}
	err := s.bulk(ctx, lines)
	if rest.IsNotFound(err) {
		return nil
	}
	return err
}
