// Package gemini adapts the Google Gemini API to llm.LLM.
package gemini

import (
	"context"
	"time"

	genai "google.golang.org/genai"

	"github.com/wilhg/agentcore/pkg/adapters/llm"
	"github.com/wilhg/agentcore/pkg/config"
	"github.com/wilhg/agentcore/pkg/errmodel"
	aotel "github.com/wilhg/agentcore/pkg/otel"
)

type clientWrapper struct {
	client *genai.Client
	model  string
}

func (c *clientWrapper) Name() string  { return "gemini" }
func (c *clientWrapper) Model() string { return c.model }

func (c *clientWrapper) Generate(ctx context.Context, messages []llm.Message, opts map[string]any) (llm.GenerateResult, error) {
	model := llm.StringOpt(opts, "model", c.model)

	gc := &genai.GenerateContentConfig{}
	var system []*genai.Part
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case llm.RoleSystem:
			system = append(system, genai.NewPartFromText(m.Content))
		case llm.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	if len(system) > 0 {
		gc.SystemInstruction = &genai.Content{Parts: system}
	}
	if v, ok := llm.FloatOpt(opts, "temperature"); ok {
		gc.Temperature = genai.Ptr(float32(v))
	}
	if v, ok := llm.IntOpt(opts, "max_tokens"); ok {
		gc.MaxOutputTokens = int32(v)
	}

	res, err := c.client.Models.GenerateContent(ctx, model, contents, gc)
	if err != nil {
		return llm.GenerateResult{}, errmodel.Invocation("generate_failed", "gemini: generate content failed",
			map[string]any{"provider": "gemini", "model": model}, err)
	}
	out := llm.GenerateResult{Text: res.Text(), Model: model}
	if u := res.UsageMetadata; u != nil {
		out.PromptTokens = int(u.PromptTokenCount)
		out.OutputTokens = int(u.CandidatesTokenCount)
		out.TotalTokens = int(u.TotalTokenCount)
	}
	return out, nil
}

// NewClient builds a Gemini API client. httpOpts may redirect the base URL.
func NewClient(ctx context.Context, apiKey string, httpOpts genai.HTTPOptions) (*genai.Client, error) {
	if apiKey == "" {
		return nil, errmodel.Configuration("missing_credentials", "gemini: API key is not configured; set GEMINI_API_KEY or GOOGLE_API_KEY",
			map[string]any{"provider": "gemini", "env": "GEMINI_API_KEY"})
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  aotel.HTTPClient(2 * time.Minute),
		HTTPOptions: httpOpts,
	})
	if err != nil {
		return nil, errmodel.Configuration("client_init", "gemini: cannot create client: "+err.Error(),
			map[string]any{"provider": "gemini"})
	}
	return client, nil
}

func newLLM(ctx context.Context, cfg *config.Config, httpOpts genai.HTTPOptions) (llm.LLM, error) {
	client, err := NewClient(ctx, cfg.Gemini.APIKey, httpOpts)
	if err != nil {
		return nil, err
	}
	return &clientWrapper{client: client, model: cfg.Gemini.Model}, nil
}

// Factory builds the "gemini" provider from cfg.Gemini.
func Factory(ctx context.Context, cfg *config.Config) (llm.LLM, error) {
	return newLLM(ctx, cfg, genai.HTTPOptions{})
}

func init() {
	_ = llm.Register("gemini", Factory)
}
