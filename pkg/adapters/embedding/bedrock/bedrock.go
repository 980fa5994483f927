// Package bedrock embeds text with Bedrock-hosted Titan or Cohere models.
package bedrock

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/wilhg/agentcore/pkg/adapters/awsutil"
	"github.com/wilhg/agentcore/pkg/adapters/embedding"
	"github.com/wilhg/agentcore/pkg/config"
	"github.com/wilhg/agentcore/pkg/errmodel"
)

type embedClient struct {
	client *bedrockruntime.Client
	model  string
}

func (e *embedClient) Name() string { return "bedrock" }

// Embed issues one InvokeModel call per input for Titan models and a single
// batched call for Cohere models.
func (e *embedClient) Embed(ctx context.Context, inputs []string, opts map[string]any) ([]embedding.Vector, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	model := e.model
	if v, ok := opts["model"].(string); ok && v != "" {
		model = v
	}
	if strings.HasPrefix(model, "cohere.") {
		return e.embedCohere(ctx, model, inputs, opts)
	}
	out := make([]embedding.Vector, 0, len(inputs))
	for _, s := range inputs {
		var resp struct {
			Embedding []float32 `json:"embedding"`
		}
		if err := e.invoke(ctx, model, map[string]any{"inputText": s}, &resp); err != nil {
			return nil, err
		}
		out = append(out, embedding.Vector(resp.Embedding))
	}
	return out, nil
}

func (e *embedClient) embedCohere(ctx context.Context, model string, inputs []string, opts map[string]any) ([]embedding.Vector, error) {
	inputType := "search_document"
	if v, ok := opts["input_type"].(string); ok && v != "" {
		inputType = v
	}
	var resp struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := e.invoke(ctx, model, map[string]any{"texts": inputs, "input_type": inputType}, &resp); err != nil {
		return nil, err
	}
	if err := embedding.CheckCount("bedrock", len(inputs), len(resp.Embeddings)); err != nil {
		return nil, err
	}
	out := make([]embedding.Vector, len(resp.Embeddings))
	for i, v := range resp.Embeddings {
		out[i] = v
	}
	return out, nil
}

func (e *embedClient) invoke(ctx context.Context, model string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errmodel.System("encode_failed", "bedrock: cannot encode request", nil, err)
	}
	res, err := e.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(model),
		Body:        payload,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		return errmodel.Invocation("embed_failed", "bedrock: invoke model failed",
			map[string]any{"provider": "bedrock", "model": model}, err)
	}
	if err := json.Unmarshal(res.Body, out); err != nil {
		return errmodel.Invocation("decode_failed", "bedrock: unexpected embedding response",
			map[string]any{"provider": "bedrock", "model": model}, err)
	}
	return nil
}

func newEmbedder(ctx context.Context, cfg *config.Config, optFns ...func(*bedrockruntime.Options)) (embedding.Embedder, error) {
	ac, err := awsutil.LoadConfig(ctx, cfg.Bedrock, "")
	if err != nil {
		return nil, err
	}
	return &embedClient{client: bedrockruntime.NewFromConfig(ac, optFns...), model: cfg.Bedrock.EmbeddingsModel}, nil
}

// Factory builds the "bedrock" embedder from cfg.Bedrock.
func Factory(ctx context.Context, cfg *config.Config) (embedding.Embedder, error) {
	return newEmbedder(ctx, cfg)
}

func init() {
	_ = embedding.Register("bedrock", Factory)
}
