package chromadb

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wilhg/agentcore/pkg/adapters/vectorstore"
	"github.com/wilhg/agentcore/pkg/config"
	"github.com/wilhg/agentcore/pkg/errmodel"
)

const collPrefix = "/api/v2/tenants/default_tenant/databases/default_database/collections"

type fakeChroma struct {
	mu       sync.Mutex
	creates  int
	requests map[string]map[string]any
	token    string
}

func (f *fakeChroma) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.token = r.Header.Get("X-Chroma-Token")
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	rest := strings.TrimPrefix(r.URL.Path, collPrefix)
	f.requests[rest] = body
	w.Header().Set("Content-Type", "application/json")
	switch rest {
	case "":
		f.creates++
		_, _ = w.Write([]byte(`{"id":"c-123","name":"` + body["name"].(string) + `"}`))
	case "/c-123/query":
		_, _ = w.Write([]byte(`{"ids":[["ns1/a1","ns1/a2"]],"distances":[[0.1,0.4]],
"metadatas":[[{"_namespace":"ns1","tag":"x"},{"_namespace":"ns1","tag":"y"}]]}`))
	default:
		_, _ = w.Write([]byte(`{}`))
	}
}

func newFake(t *testing.T) (*fakeChroma, *config.Config) {
	t.Helper()
	f := &fakeChroma{requests: map[string]map[string]any{}}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	cfg := config.NewDefaultConfig()
	cfg.VectorStore.Chroma.URL = srv.URL
	cfg.VectorStore.Collection = "itest"
	return f, cfg
}

func TestUpsertQueryDelete(t *testing.T) {
	f, cfg := newFake(t)
	vs, err := LocalFactory(t.Context(), cfg)
	require.NoError(t, err)

	require.NoError(t, vs.Upsert(t.Context(), []vectorstore.Item{
		{ID: "a1", Namespace: "ns1", Vector: vectorstore.Vector{1, 0}, Metadata: map[string]any{"tag": "x"}},
		{ID: "a2", Namespace: "ns1", Vector: vectorstore.Vector{0.8, 0.2}, Metadata: map[string]any{"tag": "y"}},
	}))
	assert.Equal(t, "itest", f.requests[""]["name"])
	assert.Equal(t, true, f.requests[""]["get_or_create"])
	up := f.requests["/c-123/upsert"]
	assert.Equal(t, []any{"ns1/a1", "ns1/a2"}, up["ids"])
	md := up["metadatas"].([]any)[0].(map[string]any)
	assert.Equal(t, "ns1", md["_namespace"])

	matches, err := vs.Query(t.Context(), vectorstore.Vector{1, 0}, 2, vectorstore.Filter{Namespace: "ns1", Equals: map[string]any{"tag": "x"}})
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "a1", matches[0].Item.ID)
	assert.Equal(t, map[string]any{"tag": "x"}, matches[0].Item.Metadata)
	assert.Greater(t, matches[0].Score, matches[1].Score)
	q := f.requests["/c-123/query"]
	assert.EqualValues(t, 2, q["n_results"])
	assert.Len(t, q["where"].(map[string]any)["$and"], 2)

	require.NoError(t, vs.Delete(t.Context(), "ns1", []string{"a1"}))
	assert.Equal(t, []any{"ns1/a1"}, f.requests["/c-123/delete"]["ids"])

	assert.Equal(t, 1, f.creates, "collection id is cached")
	assert.Empty(t, f.token)
}

func TestCloud(t *testing.T) {
	_, cfg := newFake(t)
	_, err := CloudFactory(t.Context(), cfg)
	assert.True(t, errors.Is(err, errmodel.ErrConfiguration))
	assert.Equal(t, "missing_credentials", errmodel.From(err).Code)

	f, cfg := newFake(t)
	cfg.VectorStore.Chroma.APIKey = "ck-1"
	vs, err := CloudFactory(t.Context(), cfg)
	require.NoError(t, err)
	require.NoError(t, vs.Upsert(t.Context(), []vectorstore.Item{{ID: "x", Vector: vectorstore.Vector{1}}}))
	assert.Equal(t, "ck-1", f.token)
}

func TestWhere(t *testing.T) {
	assert.Equal(t, map[string]any{"_namespace": map[string]any{"$eq": "n"}}, where("n", nil))
}

func TestItemID(t *testing.T) {
	assert.Equal(t, "a/b", itemID("ns", docID("ns", "a/b")))
	assert.Equal(t, "other", itemID("ns", "other"))
}
