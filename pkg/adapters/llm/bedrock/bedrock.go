// Package bedrock adapts the AWS Bedrock Converse API to llm.LLM.
package bedrock

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/wilhg/agentcore/pkg/adapters/awsutil"
	"github.com/wilhg/agentcore/pkg/adapters/llm"
	"github.com/wilhg/agentcore/pkg/config"
	"github.com/wilhg/agentcore/pkg/errmodel"
)

type clientWrapper struct {
	client *bedrockruntime.Client
	model  string
}

func (c *clientWrapper) Name() string  { return "bedrock" }
func (c *clientWrapper) Model() string { return c.model }

func (c *clientWrapper) Generate(ctx context.Context, messages []llm.Message, opts map[string]any) (llm.GenerateResult, error) {
	model := llm.StringOpt(opts, "model", c.model)

	in := &bedrockruntime.ConverseInput{ModelId: aws.String(model)}
	for _, m := range messages {
		if m.Role == llm.RoleSystem {
			in.System = append(in.System, &types.SystemContentBlockMemberText{Value: m.Content})
			continue
		}
		role := types.ConversationRoleUser
		if m.Role == llm.RoleAssistant {
			role = types.ConversationRoleAssistant
		}
		block := &types.ContentBlockMemberText{Value: m.Content}
		// Converse rejects consecutive turns with the same role.
		if n := len(in.Messages); n > 0 && in.Messages[n-1].Role == role {
			in.Messages[n-1].Content = append(in.Messages[n-1].Content, block)
			continue
		}
		in.Messages = append(in.Messages, types.Message{Role: role, Content: []types.ContentBlock{block}})
	}
	var inf types.InferenceConfiguration
	var hasInf bool
	if v, ok := llm.FloatOpt(opts, "temperature"); ok {
		inf.Temperature, hasInf = aws.Float32(float32(v)), true
	}
	if v, ok := llm.IntOpt(opts, "max_tokens"); ok {
		inf.MaxTokens, hasInf = aws.Int32(int32(v)), true
	}
	if hasInf {
		in.InferenceConfig = &inf
	}

	out, err := c.client.Converse(ctx, in)
	if err != nil {
		return llm.GenerateResult{}, errmodel.Invocation("generate_failed", "bedrock: converse failed",
			map[string]any{"provider": "bedrock", "model": model}, err)
	}
	res := llm.GenerateResult{Model: model}
	if msg, ok := out.Output.(*types.ConverseOutputMemberMessage); ok {
		var b strings.Builder
		for _, block := range msg.Value.Content {
			if t, ok := block.(*types.ContentBlockMemberText); ok {
				b.WriteString(t.Value)
			}
		}
		res.Text = b.String()
	}
	if u := out.Usage; u != nil {
		res.PromptTokens = int(aws.ToInt32(u.InputTokens))
		res.OutputTokens = int(aws.ToInt32(u.OutputTokens))
		res.TotalTokens = int(aws.ToInt32(u.TotalTokens))
	}
	return res, nil
}

func newLLM(ctx context.Context, cfg *config.Config, optFns ...func(*bedrockruntime.Options)) (llm.LLM, error) {
	ac, err := awsutil.LoadConfig(ctx, cfg.Bedrock, "")
	if err != nil {
		return nil, err
	}
	return &clientWrapper{client: bedrockruntime.NewFromConfig(ac, optFns...), model: cfg.Bedrock.Model}, nil
}

// Factory builds the "bedrock" provider from cfg.Bedrock.
func Factory(ctx context.Context, cfg *config.Config) (llm.LLM, error) {
	return newLLM(ctx, cfg)
}

func init() {
	_ = llm.Register("bedrock", Factory)
}
