// Package openai adapts OpenAI chat completions, and any server exposing the
// same wire protocol, to llm.LLM.
package openai

import (
	"context"
	"strings"
	"time"

	oa "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/wilhg/agentcore/pkg/adapters/llm"
	"github.com/wilhg/agentcore/pkg/config"
	"github.com/wilhg/agentcore/pkg/errmodel"
	aotel "github.com/wilhg/agentcore/pkg/otel"
)

const requestTimeout = 2 * time.Minute

// Client is an llm.LLM backed by an OpenAI-compatible chat endpoint.
type Client struct {
	client oa.Client
	name   string
	model  string
}

var _ llm.LLM = (*Client)(nil)

// New builds a client reporting itself as name. Retries are disabled.
func New(name, model string, opts ...option.RequestOption) *Client {
	base := []option.RequestOption{
		option.WithMaxRetries(0),
		option.WithHTTPClient(aotel.HTTPClient(requestTimeout)),
	}
	return &Client{client: oa.NewClient(append(base, opts...)...), name: name, model: model}
}

func (c *Client) Name() string  { return c.name }
func (c *Client) Model() string { return c.model }

func (c *Client) Generate(ctx context.Context, messages []llm.Message, opts map[string]any) (llm.GenerateResult, error) {
	model := llm.StringOpt(opts, "model", c.model)

	mm := make([]oa.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case llm.RoleSystem:
			mm = append(mm, oa.SystemMessage(m.Content))
		case llm.RoleAssistant:
			mm = append(mm, oa.AssistantMessage(m.Content))
		default:
			mm = append(mm, oa.UserMessage(m.Content))
		}
	}
	params := oa.ChatCompletionNewParams{
		Model:    shared.ChatModel(model),
		Messages: mm,
	}
	if v, ok := llm.FloatOpt(opts, "temperature"); ok {
		params.Temperature = oa.Float(v)
	}
	if v, ok := llm.IntOpt(opts, "max_tokens"); ok {
		params.MaxCompletionTokens = oa.Int(int64(v))
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return llm.GenerateResult{}, errmodel.Invocation("generate_failed", c.name+": chat completion failed",
			map[string]any{"provider": c.name, "model": model}, err)
	}
	var out string
	if len(resp.Choices) > 0 {
		out = resp.Choices[0].Message.Content
	}
	usage := resp.Usage
	return llm.GenerateResult{
		Text:         out,
		PromptTokens: int(usage.PromptTokens),
		OutputTokens: int(usage.CompletionTokens),
		TotalTokens:  int(usage.TotalTokens),
		Model:        model,
	}, nil
}

// Factory builds the "openai" provider from cfg.OpenAI.
func Factory(ctx context.Context, cfg *config.Config) (llm.LLM, error) {
	oc := cfg.OpenAI
	if oc.APIKey == "" {
		return nil, errmodel.Configuration("missing_credentials", "openai: API key is not configured; set OPENAI_API_KEY",
			map[string]any{"provider": "openai", "env": "OPENAI_API_KEY"})
	}
	opts := []option.RequestOption{option.WithAPIKey(oc.APIKey)}
	if oc.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(WithSlash(oc.BaseURL)))
	}
	return New("openai", oc.Model, opts...), nil
}

// WithSlash ensures base URLs end with "/" so relative endpoint paths join correctly.
func WithSlash(u string) string {
	if strings.HasSuffix(u, "/") {
		return u
	}
	return u + "/"
}

func init() {
	_ = llm.Register("openai", Factory)
}
