package chunking

import (
	tiktoken "github.com/pkoukk/tiktoken-go"

	"github.com/wilhg/agentcore/pkg/errmodel"
)

// FallbackEncoding is used when the model has no registered encoding.
const FallbackEncoding = "cl100k_base"

// Tokenizer converts between text and token ids.
type Tokenizer interface {
	Encode(text string) []int
	Decode(tokens []int) string
}

type tiktokenTokenizer struct {
	enc *tiktoken.Tiktoken
}

func (t tiktokenTokenizer) Encode(text string) []int   { return t.enc.Encode(text, nil, nil) }
func (t tiktokenTokenizer) Decode(tokens []int) string { return t.enc.Decode(tokens) }

// NewTokenizer returns the tiktoken encoding for model, falling back to
// cl100k_base. Encodings may be downloaded on first use.
func NewTokenizer(model string) (Tokenizer, error) {
	if enc, err := tiktoken.EncodingForModel(model); err == nil {
		return tiktokenTokenizer{enc: enc}, nil
	}
	enc, err := tiktoken.GetEncoding(FallbackEncoding)
	if err != nil {
		return nil, errmodel.System("tokenizer_unavailable", "cannot load tiktoken encoding "+FallbackEncoding,
			map[string]any{"model": model}, err)
	}
	return tiktokenTokenizer{enc: enc}, nil
}
