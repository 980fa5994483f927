package gemini

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	genai "google.golang.org/genai"

	"github.com/wilhg/agentcore/pkg/adapters/llm"
	"github.com/wilhg/agentcore/pkg/config"
	"github.com/wilhg/agentcore/pkg/errmodel"
)

func TestFactory_MissingKey(t *testing.T) {
	_, err := Factory(t.Context(), config.NewDefaultConfig())
	assert.True(t, errors.Is(err, errmodel.ErrConfiguration))
	assert.Equal(t, "missing_credentials", errmodel.From(err).Code)
}

func TestGenerate(t *testing.T) {
	var path string
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"hi there"}]}}],
"usageMetadata":{"promptTokenCount":4,"candidatesTokenCount":2,"totalTokenCount":6}}`))
	}))
	defer srv.Close()

	cfg := config.NewDefaultConfig()
	cfg.Gemini.APIKey = "g-test"
	m, err := newLLM(t.Context(), cfg, genai.HTTPOptions{BaseURL: srv.URL + "/"})
	require.NoError(t, err)

	res, err := m.Generate(t.Context(), []llm.Message{
		{Role: llm.RoleSystem, Content: "be kind"},
		{Role: llm.RoleUser, Content: "hello"},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "hi there", res.Text)
	assert.Equal(t, 6, res.TotalTokens)
	assert.True(t, strings.HasSuffix(path, "/models/gemini-1.5-flash:generateContent"), path)
	assert.Contains(t, body, "systemInstruction")
	assert.Len(t, body["contents"], 1)
}
