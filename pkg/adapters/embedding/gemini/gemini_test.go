package gemini

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	genai "google.golang.org/genai"

	"github.com/wilhg/agentcore/pkg/config"
	"github.com/wilhg/agentcore/pkg/errmodel"
)

func TestEmbed(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"embeddings":[{"values":[1,2]},{"values":[3,4]}]}`))
	}))
	defer srv.Close()

	cfg := config.NewDefaultConfig()
	cfg.Gemini.APIKey = "g-test"
	e, err := newEmbedder(t.Context(), cfg, genai.HTTPOptions{BaseURL: srv.URL + "/"})
	require.NoError(t, err)

	vecs, err := e.Embed(t.Context(), []string{"a", "b"}, nil)
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, []float32{3, 4}, []float32(vecs[1]))
	assert.True(t, strings.Contains(path, "text-embedding-004"), path)
}

func TestFactory_MissingKey(t *testing.T) {
	_, err := Factory(t.Context(), config.NewDefaultConfig())
	assert.True(t, errors.Is(err, errmodel.ErrConfiguration))
}
