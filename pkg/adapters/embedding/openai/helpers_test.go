package openai

import (
	"github.com/openai/openai-go/v3/option"

	llmopenai "github.com/wilhg/agentcore/pkg/adapters/llm/openai"
)

func optionsFor(base string) []option.RequestOption {
	return []option.RequestOption{option.WithAPIKey("sk-test"), option.WithBaseURL(llmopenai.WithSlash(base))}
}
