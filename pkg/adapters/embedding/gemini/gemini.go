// Package gemini adapts Gemini embedding models to embedding.Embedder.
package gemini

import (
	"context"

	genai "google.golang.org/genai"

	"github.com/wilhg/agentcore/pkg/adapters/embedding"
	llmgemini "github.com/wilhg/agentcore/pkg/adapters/llm/gemini"
	"github.com/wilhg/agentcore/pkg/config"
	"github.com/wilhg/agentcore/pkg/errmodel"
)

type embedClient struct {
	client *genai.Client
	model  string
}

func (e *embedClient) Name() string { return "gemini" }

func (e *embedClient) Embed(ctx context.Context, inputs []string, opts map[string]any) ([]embedding.Vector, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	model := e.model
	if v, ok := opts["model"].(string); ok && v != "" {
		model = v
	}
	contents := make([]*genai.Content, 0, len(inputs))
	for _, s := range inputs {
		contents = append(contents, genai.NewContentFromText(s, genai.RoleUser))
	}
	res, err := e.client.Models.EmbedContent(ctx, model, contents, nil)
	if err != nil {
		return nil, errmodel.Invocation("embed_failed", "gemini: embed content failed",
			map[string]any{"provider": "gemini", "model": model}, err)
	}
	if err := embedding.CheckCount("gemini", len(inputs), len(res.Embeddings)); err != nil {
		return nil, err
	}
	out := make([]embedding.Vector, 0, len(res.Embeddings))
	for _, emb := range res.Embeddings {
		vec := make(embedding.Vector, len(emb.Values))
		for i := range emb.Values {
			vec[i] = float32(emb.Values[i])
		}
		out = append(out, vec)
	}
	return out, nil
}

func newEmbedder(ctx context.Context, cfg *config.Config, httpOpts genai.HTTPOptions) (embedding.Embedder, error) {
	client, err := llmgemini.NewClient(ctx, cfg.Gemini.APIKey, httpOpts)
	if err != nil {
		return nil, err
	}
	return &embedClient{client: client, model: cfg.Gemini.EmbeddingsModel}, nil
}

// Factory builds the "gemini" embedder from cfg.Gemini.
func Factory(ctx context.Context, cfg *config.Config) (embedding.Embedder, error) {
	return newEmbedder(ctx, cfg, genai.HTTPOptions{})
}

func init() {
	_ = embedding.Register("gemini", Factory)
}
