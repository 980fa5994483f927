// Package openai adapts the OpenAI embeddings endpoint, and compatible servers,
// to embedding.Embedder.
package openai

import (
	"context"
	"time"

	oa "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/wilhg/agentcore/pkg/adapters/embedding"
	llmopenai "github.com/wilhg/agentcore/pkg/adapters/llm/openai"
	"github.com/wilhg/agentcore/pkg/config"
	"github.com/wilhg/agentcore/pkg/errmodel"
	aotel "github.com/wilhg/agentcore/pkg/otel"
)

// Embedder calls an OpenAI-compatible /embeddings endpoint.
type Embedder struct {
	client oa.Client
	name   string
	model  string
}

var _ embedding.Embedder = (*Embedder)(nil)

// New builds an embedder reporting itself as name. Retries are disabled.
func New(name, model string, opts ...option.RequestOption) *Embedder {
	base := []option.RequestOption{
		option.WithMaxRetries(0),
		option.WithHTTPClient(aotel.HTTPClient(time.Minute)),
	}
	return &Embedder{client: oa.NewClient(append(base, opts...)...), name: name, model: model}
}

func (e *Embedder) Name() string { return e.name }

func (e *Embedder) Embed(ctx context.Context, inputs []string, opts map[string]any) ([]embedding.Vector, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	model := e.model
	if v, ok := opts["model"].(string); ok && v != "" {
		model = v
	}
	resp, err := e.client.Embeddings.New(ctx, oa.EmbeddingNewParams{
		Model: oa.EmbeddingModel(model),
		Input: oa.EmbeddingNewParamsInputUnion{OfArrayOfStrings: inputs},
	})
	if err != nil {
		return nil, errmodel.Invocation("embed_failed", e.name+": embeddings request failed",
			map[string]any{"provider": e.name, "model": model}, err)
	}
	if err := embedding.CheckCount(e.name, len(inputs), len(resp.Data)); err != nil {
		return nil, err
	}
	out := make([]embedding.Vector, len(resp.Data))
	for i, d := range resp.Data {
		// results carry their input index; fall back to position if it is out of range
		idx := int(d.Index)
		if idx < 0 || idx >= len(out) || out[idx] != nil {
			idx = i
		}
		vec := make(embedding.Vector, len(d.Embedding))
		for j, f := range d.Embedding {
			vec[j] = float32(f)
		}
		out[idx] = vec
	}
	return out, nil
}

// Factory builds the "openai" embedder from cfg.OpenAI.
func Factory(ctx context.Context, cfg *config.Config) (embedding.Embedder, error) {
	oc := cfg.OpenAI
	if oc.APIKey == "" {
		return nil, errmodel.Configuration("missing_credentials", "openai: API key is not configured; set OPENAI_API_KEY",
			map[string]any{"provider": "openai", "env": "OPENAI_API_KEY"})
	}
	opts := []option.RequestOption{option.WithAPIKey(oc.APIKey)}
	if oc.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(llmopenai.WithSlash(oc.BaseURL)))
	}
	return New("openai", oc.EmbeddingsModel, opts...), nil
}

func init() {
	_ = embedding.Register("openai", Factory)
}
