package openai

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wilhg/agentcore/pkg/config"
	"github.com/wilhg/agentcore/pkg/errmodel"
)

func embeddingsServer(t *testing.T, gotBody *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(gotBody)
		w.Header().Set("Content-Type", "application/json")
		// returned out of order on purpose
		_, _ = w.Write([]byte(`{"object":"list","model":"text-embedding-3-small",
"data":[{"object":"embedding","index":1,"embedding":[0,1]},{"object":"embedding","index":0,"embedding":[1,0]}],
"usage":{"prompt_tokens":2,"total_tokens":2}}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestEmbed(t *testing.T) {
	var body map[string]any
	srv := embeddingsServer(t, &body)

	cfg := config.NewDefaultConfig()
	cfg.OpenAI.APIKey = "sk-test"
	cfg.OpenAI.BaseURL = srv.URL
	e, err := Factory(t.Context(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "openai", e.Name())

	vecs, err := e.Embed(t.Context(), []string{"a", "b"}, nil)
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, []float32{1, 0}, []float32(vecs[0]))
	assert.Equal(t, []float32{0, 1}, []float32(vecs[1]))
	assert.Equal(t, "text-embedding-3-small", body["model"])
	assert.Equal(t, []any{"a", "b"}, body["input"])

	none, err := e.Embed(t.Context(), nil, nil)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestEmbed_CountMismatch(t *testing.T) {
	var body map[string]any
	srv := embeddingsServer(t, &body)
	e := New("openai", "m", optionsFor(srv.URL)...)
	_, err := e.Embed(t.Context(), []string{"only-one"}, nil)
	assert.Equal(t, "vector_count", errmodel.From(err).Code)
}

func TestFactory_MissingKey(t *testing.T) {
	_, err := Factory(t.Context(), config.NewDefaultConfig())
	assert.True(t, errors.Is(err, errmodel.ErrConfiguration))
}
