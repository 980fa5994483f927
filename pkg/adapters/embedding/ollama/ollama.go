// Package ollama embeds text with a local Ollama server.
package ollama

import (
	"context"

	"github.com/openai/openai-go/v3/option"

	"github.com/wilhg/agentcore/pkg/adapters/embedding"
	"github.com/wilhg/agentcore/pkg/adapters/embedding/openai"
	llmollama "github.com/wilhg/agentcore/pkg/adapters/llm/ollama"
	"github.com/wilhg/agentcore/pkg/config"
	"github.com/wilhg/agentcore/pkg/errmodel"
)

// Factory builds the "ollama" embedder from cfg.Ollama.
func Factory(ctx context.Context, cfg *config.Config) (embedding.Embedder, error) {
	if cfg.Ollama.BaseURL == "" {
		return nil, errmodel.Configuration("missing_base_url", "ollama: base URL is not configured; set OLLAMA_BASE_URL",
			map[string]any{"provider": "ollama", "env": "OLLAMA_BASE_URL"})
	}
	return openai.New("ollama", cfg.Ollama.EmbeddingsModel,
		option.WithBaseURL(llmollama.BaseURL(cfg.Ollama.BaseURL)),
		option.WithAPIKey("ollama"),
	), nil
}

func init() {
	_ = embedding.Register("ollama", Factory)
}
