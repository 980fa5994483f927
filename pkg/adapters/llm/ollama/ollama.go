// Package ollama talks to a local Ollama server through its OpenAI-compatible
// /v1 endpoint.
package ollama

import (
	"context"
	"strings"

	"github.com/openai/openai-go/v3/option"

	"github.com/wilhg/agentcore/pkg/adapters/llm"
	"github.com/wilhg/agentcore/pkg/adapters/llm/openai"
	"github.com/wilhg/agentcore/pkg/config"
	"github.com/wilhg/agentcore/pkg/errmodel"
)

// Ollama ignores the key but the SDK requires one.
const apiKey = "ollama"

// BaseURL returns the OpenAI-compatible root for an Ollama server URL.
func BaseURL(server string) string {
	return strings.TrimRight(server, "/") + "/v1/"
}

// Factory builds the "ollama" provider from cfg.Ollama.
func Factory(ctx context.Context, cfg *config.Config) (llm.LLM, error) {
	if cfg.Ollama.BaseURL == "" {
		return nil, errmodel.Configuration("missing_base_url", "ollama: base URL is not configured; set OLLAMA_BASE_URL",
			map[string]any{"provider": "ollama", "env": "OLLAMA_BASE_URL"})
	}
	return openai.New("ollama", cfg.Ollama.Model,
		option.WithBaseURL(BaseURL(cfg.Ollama.BaseURL)),
		option.WithAPIKey(apiKey),
	), nil
}

func init() {
	_ = llm.Register("ollama", Factory)
}
