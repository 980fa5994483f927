package bedrock

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wilhg/agentcore/pkg/config"
)

func newTestEmbedder(t *testing.T, h http.HandlerFunc) *embedClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	cfg := config.NewDefaultConfig()
	cfg.Bedrock.AccessKeyID = "AKIDTEST"
	cfg.Bedrock.SecretAccessKey = "secret"
	e, err := newEmbedder(t.Context(), cfg, func(o *bedrockruntime.Options) { o.BaseEndpoint = aws.String(srv.URL) })
	require.NoError(t, err)
	return e.(*embedClient)
}

func TestEmbed_Titan(t *testing.T) {
	var calls atomic.Int32
	var lastPath string
	e := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		lastPath = r.URL.Path
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		if body["inputText"] == "a" {
			_, _ = w.Write([]byte(`{"embedding":[1,0],"inputTextTokenCount":1}`))
			return
		}
		_, _ = w.Write([]byte(`{"embedding":[0,1],"inputTextTokenCount":1}`))
	})

	vecs, err := e.Embed(t.Context(), []string{"a", "b"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, []float32(vecs[0]))
	assert.Equal(t, []float32{0, 1}, []float32(vecs[1]))
	assert.EqualValues(t, 2, calls.Load())
	assert.True(t, strings.HasSuffix(lastPath, "/invoke"), lastPath)
}

func TestEmbed_CohereBatches(t *testing.T) {
	var calls atomic.Int32
	var body map[string]any
	e := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"embeddings":[[1,1],[2,2]]}`))
	})

	vecs, err := e.Embed(t.Context(), []string{"a", "b"}, map[string]any{"model": "cohere.embed-english-v3"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.EqualValues(t, 1, calls.Load())
	assert.Equal(t, "search_document", body["input_type"])
}
