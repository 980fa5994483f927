// Package chunking splits text into overlapping pieces sized for embedding.
package chunking

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/wilhg/agentcore/pkg/errmodel"
)

// Strategy selects how text is split.
type Strategy string

const (
	StrategyFixedSize  Strategy = "fixed_size"
	StrategySentence   Strategy = "sentence"
	StrategyParagraph  Strategy = "paragraph"
	StrategyTokenBased Strategy = "token_based"
)

// Strategies lists every accepted strategy.
var Strategies = []Strategy{StrategyFixedSize, StrategySentence, StrategyParagraph, StrategyTokenBased}

// ParseStrategy validates a strategy name. The empty string means paragraph.
func ParseStrategy(s string) (Strategy, error) {
	st := Strategy(strings.ToLower(strings.TrimSpace(s)))
	if st == "" {
		return StrategyParagraph, nil
	}
	for _, known := range Strategies {
		if st == known {
			return st, nil
		}
	}
	names := make([]string, len(Strategies))
	for i, known := range Strategies {
		names[i] = string(known)
	}
	return "", errmodel.Value("invalid_strategy", "unknown chunking strategy "+s+"; expected one of "+strings.Join(names, ", "),
		map[string]any{"strategy": s, "allowed": names})
}

// Chunk is one piece of the source text. Start and End are byte offsets into it.
type Chunk struct {
	ID         string
	Content    string
	Start      int
	End        int
	TokenCount int
	// Overlaps reports whether the chunk repeats the tail of the previous one.
	Overlaps bool
	Metadata map[string]any
}

// Options configures a Chunker. Size and Overlap count runes, or tokens for
// StrategyTokenBased.
type Options struct {
	Size    int
	Overlap int
	// Model picks the tiktoken encoding when Tokenizer is nil.
	Model     string
	Tokenizer Tokenizer
	Logger    *zap.Logger
}

// Chunker splits text. It is safe for concurrent use.
type Chunker struct {
	size    int
	overlap int
	tok     Tokenizer
	logger  *zap.Logger
}

const (
	DefaultSize    = 1000
	DefaultOverlap = 100
)

// New builds a Chunker. A zero Options uses DefaultSize and DefaultOverlap
// with the gpt-3.5-turbo encoding. Without a usable tokenizer, token counts
// are zero and StrategyTokenBased fails.
func New(opts Options) *Chunker {
	c := &Chunker{size: opts.Size, overlap: opts.Overlap, tok: opts.Tokenizer, logger: opts.Logger}
	if c.size <= 0 {
		c.size = DefaultSize
		if opts.Overlap == 0 {
			c.overlap = DefaultOverlap
		}
	}
	c.overlap = max(c.overlap, 0)
	if c.overlap >= c.size {
		c.overlap = c.size / 2
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.tok == nil {
		model := opts.Model
		if model == "" {
			model = "gpt-3.5-turbo"
		}
		tok, err := NewTokenizer(model)
		if err != nil {
			c.logger.Warn("tokenizer unavailable; token counts disabled", zap.Error(err))
		} else {
			c.tok = tok
		}
	}
	return c
}

// Split chunks text with strategy. metadata is copied into every chunk.
func (c *Chunker) Split(text string, strategy Strategy, metadata map[string]any) ([]Chunk, error) {
	var chunks []Chunk
	switch strategy {
	case StrategyFixedSize:
		chunks = c.fixedSize(text, metadata)
	case StrategySentence:
		chunks = c.sentences(text, 0, "sentence_chunk", metadata)
	case StrategyParagraph:
		chunks = c.paragraphs(text, metadata)
	case StrategyTokenBased:
		if c.tok == nil {
			return nil, errmodel.Configuration("tokenizer_unavailable", "token_based chunking needs a tokenizer", nil)
		}
		chunks = c.tokens(text, metadata)
	default:
		if _, err := ParseStrategy(string(strategy)); err != nil {
			return nil, err
		}
	}
	total := 0
	for _, ch := range chunks {
		total += ch.TokenCount
	}
	c.logger.Debug("chunked text",
		zap.String("strategy", string(strategy)),
		zap.Int("length", len(text)),
		zap.Int("chunks", len(chunks)),
		zap.Int("tokens", total),
	)
	return chunks, nil
}

func (c *Chunker) count(s string) int {
	if c.tok == nil {
		return 0
	}
	return len(c.tok.Encode(s))
}

func (c *Chunker) newChunk(id, content string, start, end int, method string, metadata map[string]any, extra ...any) Chunk {
	md := make(map[string]any, len(metadata)+1+len(extra)/2)
	for k, v := range metadata {
		md[k] = v
	}
	md["chunk_method"] = method
	for i := 0; i+1 < len(extra); i += 2 {
		md[extra[i].(string)] = extra[i+1]
	}
	return Chunk{ID: id, Content: content, Start: start, End: end, TokenCount: c.count(content), Metadata: md}
}

// fixedSize cuts windows of c.size runes, backing off to the last space so
// words stay whole.
func (c *Chunker) fixedSize(text string, metadata map[string]any) []Chunk {
	runes := []rune(text)
	// offs[i] is the byte offset of rune i
	offs := make([]int, len(runes)+1)
	for i, r := range runes {
		offs[i+1] = offs[i] + utf8.RuneLen(r)
	}
	var out []Chunk
	for start := 0; start < len(runes); {
		end := min(start+c.size, len(runes))
		if end < len(runes) && !unicode.IsSpace(runes[end]) {
			for i := end - 1; i > start; i-- {
				if runes[i] == ' ' {
					end = i
					break
				}
			}
		}
		ch := c.newChunk(fmt.Sprintf("chunk_%d", len(out)), string(runes[start:end]), offs[start], offs[end], "fixed_size", metadata)
		ch.Overlaps = start > 0 && c.overlap > 0
		out = append(out, ch)
		if end == len(runes) {
			break
		}
		start = max(end-c.overlap, start+1)
	}
	return out
}

type span struct{ start, end int }

// sentenceSpans splits after '.', '!' or '?' followed by whitespace. Spans
// exclude the separating whitespace.
func sentenceSpans(text string) []span {
	var out []span
	start := 0
	for i := 0; i < len(text); {
		r, w := utf8.DecodeRuneInString(text[i:])
		i += w
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		j := i
		for j < len(text) {
			r2, w2 := utf8.DecodeRuneInString(text[j:])
			if !unicode.IsSpace(r2) {
				break
			}
			j += w2
		}
		if j > i {
			out = append(out, span{start, i})
			start, i = j, j
		}
	}
	if start < len(text) {
		out = append(out, span{start, len(text)})
	}
	return out
}

// sentences packs whole sentences into chunks of at most c.size runes. A single
// longer sentence becomes its own chunk.
func (c *Chunker) sentences(text string, base int, prefix string, metadata map[string]any, extra ...any) []Chunk {
	var out []Chunk
	var cur *span
	flush := func() {
		content := strings.TrimSpace(text[cur.start:cur.end])
		if content != "" {
			out = append(out, c.newChunk(fmt.Sprintf("%s_%d", prefix, len(out)), content, base+cur.start, base+cur.end, "sentence", metadata, extra...))
		}
	}
	for _, s := range sentenceSpans(text) {
		if cur == nil {
			cur = &span{s.start, s.end}
			continue
		}
		if utf8.RuneCountInString(text[cur.start:s.end]) > c.size {
			flush()
			cur = &span{s.start, s.end}
			continue
		}
		cur.end = s.end
	}
	if cur != nil {
		flush()
	}
	return out
}

var paragraphBreak = regexp.MustCompile(`\n\s*\n`)

// paragraphs emits one chunk per paragraph and sentence-splits paragraphs
// longer than c.size.
func (c *Chunker) paragraphs(text string, metadata map[string]any) []Chunk {
	var out []Chunk
	prev := 0
	bounds := append(paragraphBreak.FindAllStringIndex(text, -1), []int{len(text), len(text)})
	for _, b := range bounds {
		raw := text[prev:b[0]]
		lead := len(raw) - len(strings.TrimLeftFunc(raw, unicode.IsSpace))
		para := strings.TrimSpace(raw)
		start := prev + lead
		prev = b[1]
		if para == "" {
			continue
		}
		if utf8.RuneCountInString(para) <= c.size {
			out = append(out, c.newChunk(fmt.Sprintf("para_chunk_%d", len(out)), para, start, start+len(para), "paragraph", metadata,
				"is_complete_paragraph", true))
			continue
		}
		idx := len(out)
		for i, ch := range c.sentences(para, start, "para_chunk", metadata, "large_paragraph", true) {
			ch.ID = fmt.Sprintf("para_chunk_%d_%d", idx, i)
			out = append(out, ch)
		}
	}
	return out
}

// tokens cuts windows of c.size tokens. Consecutive windows share up to
// c.overlap tokens, never more than half a window.
func (c *Chunker) tokens(text string, metadata map[string]any) []Chunk {
	toks := c.tok.Encode(text)
	offs := tokenOffsets(c.tok, toks, text)
	var out []Chunk
	for start := 0; start < len(toks); {
		end := min(start+c.size, len(toks))
		window := toks[start:end]
		md := make(map[string]any, len(metadata)+1)
		for k, v := range metadata {
			md[k] = v
		}
		md["chunk_method"] = "token_based"
		out = append(out, Chunk{
			ID:         fmt.Sprintf("token_chunk_%d", len(out)),
			Content:    c.tok.Decode(window),
			Start:      offs[start],
			End:        offs[end],
			TokenCount: len(window),
			Overlaps:   start > 0 && c.overlap > 0,
			Metadata:   md,
		})
		if end == len(toks) {
			break
		}
		start = end - min(c.overlap, len(window)/2)
	}
	return out
}

// tokenOffsets returns offs where offs[i] is the byte offset in text at which
// token i starts and offs[len(toks)] is the end. Runs of tokens are decoded
// together until they form valid UTF-8 that matches text, so a rune split
// across tokens is measured once. Tokens inside such a run start at the
// rune's first byte.
func tokenOffsets(tok Tokenizer, toks []int, text string) []int {
	offs := make([]int, len(toks)+1)
	anchor := 0
	for i := range toks {
		piece := tok.Decode(toks[anchor : i+1])
		if !utf8.ValidString(piece) || !strings.HasPrefix(text[offs[anchor]:], piece) {
			continue
		}
		for j := anchor + 1; j <= i; j++ {
			offs[j] = offs[anchor]
		}
		offs[i+1] = offs[anchor] + len(piece)
		anchor = i + 1
	}
	// tokens that never realigned with text run to its end
	for j := anchor + 1; j <= len(toks); j++ {
		offs[j] = len(text)
	}
	return offs
}
