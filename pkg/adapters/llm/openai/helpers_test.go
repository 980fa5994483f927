package openai

import "github.com/openai/openai-go/v3/option"

func optionsFor(base string) []option.RequestOption {
	return []option.RequestOption{option.WithAPIKey("sk-test"), option.WithBaseURL(WithSlash(base))}
}
