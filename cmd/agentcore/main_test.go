package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const petstore = "../../pkg/openapi/testdata/petstore.yaml"

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	t.Setenv("AGENTCORE_LOG_LEVEL", "error")
	var stdout, stderr bytes.Buffer
	code := run(t.Context(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestVersionAndUsage(t *testing.T) {
	code, out, _ := runCLI(t, "version")
	assert.Zero(t, code)
	assert.True(t, strings.HasPrefix(out, "agentcore dev"))

	code, _, errOut := runCLI(t, "launch")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, `unknown command "launch"`)

	code, _, _ = runCLI(t)
	assert.Equal(t, 2, code)
}

func TestConvert(t *testing.T) {
	code, out, errOut := runCLI(t, "convert", petstore, "-f", "names")
	require.Zero(t, code, errOut)
	var names []string
	require.NoError(t, json.Unmarshal([]byte(out), &names))
	assert.NotEmpty(t, names)

	code, out, errOut = runCLI(t, "convert", "-f", "info", "-b", "http://localhost:1", petstore)
	require.Zero(t, code, errOut)
	var info map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, "http://localhost:1", info["base_url"])
	assert.EqualValues(t, len(names), info["tool_count"])

	code, _, errOut = runCLI(t, "convert", petstore, "-f", "xml")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "invalid_format")

	code, _, errOut = runCLI(t, "convert")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "expected exactly one source")

	code, _, errOut = runCLI(t, "convert", petstore, "-no-such-flag")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "no-such-flag")

	code, _, _ = runCLI(t, "convert", "-h")
	assert.Zero(t, code)
}

func TestUsageErrorsExitTwo(t *testing.T) {
	for _, args := range [][]string{
		{"validate"},
		{"index", "-provider", "fake"},
		{"search", "-k", "notanumber", "q"},
		{"mcp-tools"},
		{"eval", "-dataset", "a.json", "-builtin", "basic_qa"},
		{"eval", "stray"},
	} {
		code, _, errOut := runCLI(t, args...)
		assert.Equal(t, 2, code, "%v: %s", args, errOut)
	}
}

func TestConvert_FileFormatWritesOutput(t *testing.T) {
	out := filepath.Join(t.TempDir(), "petstore_tools.go")
	code, stdout, errOut := runCLI(t, "convert", petstore, "-f", "file", "-o", out, "-package", "petstore")
	require.Zero(t, code, errOut)
	assert.Contains(t, stdout, out)
	b, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(b), "package petstore")
}

func TestValidate(t *testing.T) {
	code, out, errOut := runCLI(t, "validate", petstore)
	require.Zero(t, code, errOut)
	assert.Contains(t, out, "valid OpenAPI")

	code, _, errOut = runCLI(t, "validate", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Equal(t, 1, code)
	assert.NotEmpty(t, errOut)
}

func TestInfo_DoesNotLeakSecrets(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-secret")
	code, out, errOut := runCLI(t, "info", "-provider", "openai")
	require.Zero(t, code, errOut)
	assert.NotContains(t, out, "sk-secret")

	var got struct {
		Info struct {
			Provider         string `json:"provider"`
			APIKeyConfigured *bool  `json:"api_key_configured"`
		} `json:"info"`
		VectorStores []string `json:"vector_stores"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "openai", got.Info.Provider)
	require.NotNil(t, got.Info.APIKeyConfigured)
	assert.True(t, *got.Info.APIKeyConfigured)
	assert.Contains(t, got.VectorStores, "faiss_local")

	code, _, errOut = runCLI(t, "info", "-provider", "claude")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "claude")
}

func TestIndexAndSearch(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("FAISS_INDEX_PATH", filepath.Join(dir, "index"))
	doc := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(doc, []byte("Cats sleep a lot.\n\nDogs like long walks."), 0o644))

	code, out, errOut := runCLI(t, "index", "-provider", "fake", "-store", "faiss_local", "-namespace", "notes", doc)
	require.Zero(t, code, errOut)
	assert.Contains(t, out, "indexed 2 chunks from 1 files")

	code, out, errOut = runCLI(t, "search", "-provider", "fake", "-store", "faiss_local", "-namespace", "notes", "-k", "1", "Dogs", "like", "long", "walks.")
	require.Zero(t, code, errOut)
	var res []struct {
		Text  string  `json:"text"`
		Score float64 `json:"score"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Len(t, res, 1)
	assert.Equal(t, "Dogs like long walks.", res[0].Text)
	assert.InDelta(t, 1.0, res[0].Score, 1e-5)
}

// chatServer answers every OpenAI-style chat completion with reply.
func chatServer(t *testing.T, reply string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		body, _ := json.Marshal(map[string]any{
			"id": "c1", "object": "chat.completion", "created": 1, "model": "llama3",
			"choices": []map[string]any{{"index": 0, "finish_reason": "stop", "message": map[string]any{"role": "assistant", "content": reply}}},
			"usage":   map[string]any{"prompt_tokens": 2, "completion_tokens": 3, "total_tokens": 5},
		})
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestEval(t *testing.T) {
	srv := chatServer(t, "The capital of France is Paris.")
	t.Setenv("OLLAMA_BASE_URL", srv.URL)

	dir := t.TempDir()
	dataset := filepath.Join(dir, "qa.json")
	require.NoError(t, os.WriteFile(dataset, []byte(`[
  {"prompt": "What is the capital of France?", "expected": "Paris"},
  {"prompt": "What is the capital of Japan?", "expected": "Tokyo"}
]`), 0o644))
	results := filepath.Join(dir, "results.json")

	code, out, errOut := runCLI(t, "eval", "-provider", "ollama", "-type", "contains", "-dataset", dataset, "-o", results)
	require.Zero(t, code, errOut)
	var sum struct {
		TotalSamples  int       `json:"total_samples"`
		AvgScore      float64   `json:"avg_score"`
		Scores        []float64 `json:"scores"`
		FailedSamples int       `json:"failed_samples"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &sum))
	assert.Equal(t, 2, sum.TotalSamples)
	assert.Equal(t, []float64{1, 0}, sum.Scores)
	assert.InDelta(t, 0.5, sum.AvgScore, 1e-9)
	assert.Zero(t, sum.FailedSamples)

	b, err := os.ReadFile(results)
	require.NoError(t, err)
	assert.Contains(t, string(b), "The capital of France is Paris.")

	fixtures := filepath.Join(dir, "fixtures")
	require.NoError(t, os.Mkdir(fixtures, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(fixtures, "france.json"),
		[]byte(`{"prompt":"Capital of {{.country}}?","vars":{"country":"France"},"expected":"The capital of France is Paris."}`), 0o644))
	code, out, errOut = runCLI(t, "eval", "-provider", "ollama", "-embeddings", "fake", "-fixtures", fixtures)
	require.Zero(t, code, errOut)
	require.NoError(t, json.Unmarshal([]byte(out), &sum))
	require.Len(t, sum.Scores, 1)
	assert.InDelta(t, 1.0, sum.Scores[0], 1e-6)

	code, out, errOut = runCLI(t, "eval", "-compare", "ollama", "-type", "exact_match", "-builtin", "basic_qa", "-size", "2")
	require.Zero(t, code, errOut)
	var cmp struct {
		BestModel string `json:"best_model"`
		Models    []struct {
			Provider string `json:"provider"`
		} `json:"models"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &cmp))
	assert.Equal(t, "ollama", cmp.BestModel)
	require.Len(t, cmp.Models, 1)

	code, _, errOut = runCLI(t, "eval", "-provider", "ollama", "-type", "bleu")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "invalid_eval_type")
}
